// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataservice

// Kind identifies a data-service notification.
type Kind int

const (
	// KindAdd follows insertion of a new name.
	KindAdd Kind = iota

	// KindBeforeReplace precedes a replacement; Object is still retrievable.
	KindBeforeReplace

	// KindAfterReplace follows a replacement; Object is the new value.
	KindAfterReplace

	// KindPreDelete precedes removal; Object is still retrievable.
	KindPreDelete

	// KindPostDelete follows removal. Object is the removed value.
	KindPostDelete

	// KindRename follows a rename from Name to NewName.
	KindRename

	// KindClear follows Clear, after every entry's delete pair.
	KindClear

	// KindGroupUpdated follows a change to a group's member list.
	KindGroupUpdated
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindBeforeReplace:
		return "before_replace"
	case KindAfterReplace:
		return "after_replace"
	case KindPreDelete:
		return "pre_delete"
	case KindPostDelete:
		return "post_delete"
	case KindRename:
		return "rename"
	case KindClear:
		return "clear"
	case KindGroupUpdated:
		return "group_updated"
	default:
		return "unknown"
	}
}

// Notification describes one completed (or imminent) mutation.
type Notification[T any] struct {
	Type    Kind
	Service string
	Name    string

	// NewName is set for KindRename.
	NewName string

	// Object is the value concerned; for KindBeforeReplace it is the old value.
	Object T

	// Replacement is the incoming value for KindBeforeReplace.
	Replacement T
}

// Kind implements notify.Kinded.
func (n Notification[T]) Kind() Kind {
	return n.Type
}
