// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algorithm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianReduce/services/reduce/history"
	"github.com/AleutianAI/AleutianReduce/services/reduce/property"
)

// Replay re-runs every top-level record of wh, in order, through env's factory.
//
// Description:
//
//	Each record's non-default properties (other than None-direction ones)
//	are applied by string, then the algorithm executes with rethrow on.
//	Replay stops at the first failure.
//
// Outputs:
//   - int: Number of records replayed successfully.
//   - error: The first creation, property or execution error, wrapped with
//     the record index and name.
func Replay(ctx context.Context, env *Environment, wh *history.WorkspaceHistory) (int, error) {
	logger := env.Logger.With(slog.String("component", "replay"))
	for i, rec := range wh.AlgorithmHistories() {
		if err := replayOne(ctx, env, rec); err != nil {
			return i, fmt.Errorf("replay record %d (%s v%d): %w", i, rec.Name(), rec.Version(), err)
		}
		logger.Debug("record replayed", slog.Int("index", i), slog.String("algorithm", rec.Name()))
	}
	return wh.Size(), nil
}

func replayOne(ctx context.Context, env *Environment, rec *history.AlgorithmHistory) error {
	a, err := env.Create(rec.Name(), rec.Version())
	if err != nil {
		return err
	}
	for _, ph := range rec.Properties() {
		if ph.IsDefault || ph.Direction == property.None.String() {
			continue
		}
		if err := a.SetPropertyValue(ph.Name, ph.Value); err != nil {
			return fmt.Errorf("set %s: %w", ph.Name, err)
		}
	}
	a.SetRethrows(true)
	_, err = a.Execute(ctx)
	return err
}
