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
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianReduce/services/reduce/dataservice"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/property"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

// -----------------------------------------------------------------------------
// WorkspaceProperty
// -----------------------------------------------------------------------------

// WorkspaceProperty is a property whose string value names a workspace.
//
// Description:
//
//	Input and InOut properties resolve the name through the data service
//	when set and again when validated. Output properties hold whatever exec
//	assigns with SetWorkspace; the runtime stores it under the name after a
//	successful top-level run. A workspace may also be assigned directly
//	(SetValueAny), which is how parents hand data to children without the
//	data service.
//
// Thread Safety: Safe for concurrent use.
type WorkspaceProperty struct {
	name      string
	doc       string
	direction property.Direction
	optional  bool
	kinds     []string
	ads       *dataservice.AnalysisDataService

	mu        sync.RWMutex
	wsName    string
	ws        workspace.Workspace
	direct    bool
	isDefault bool
}

// WorkspaceOption configures a WorkspaceProperty.
type WorkspaceOption func(*WorkspaceProperty)

// Optional allows the property to be left empty.
func Optional() WorkspaceOption {
	return func(p *WorkspaceProperty) { p.optional = true }
}

// WithKinds restricts the accepted workspace kinds (see workspace.Workspace.Kind).
func WithKinds(kinds ...string) WorkspaceOption {
	return func(p *WorkspaceProperty) { p.kinds = kinds }
}

// WithWorkspaceDoc sets the documentation string.
func WithWorkspaceDoc(doc string) WorkspaceOption {
	return func(p *WorkspaceProperty) { p.doc = doc }
}

// NewWorkspaceProperty creates an empty workspace property bound to ads.
//
// Outputs:
//   - error: InvalidName if name is blank or dir is None.
func NewWorkspaceProperty(name string, dir property.Direction, ads *dataservice.AnalysisDataService, opts ...WorkspaceOption) (*WorkspaceProperty, error) {
	if strings.TrimSpace(name) == "" {
		return nil, kernel.InvalidName("property", name, "name must not be empty")
	}
	if dir == property.None {
		return nil, kernel.InvalidName("property", name, "workspace properties need a direction")
	}
	p := &WorkspaceProperty{
		name:      name,
		direction: dir,
		ads:       ads,
		isDefault: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// DeclareWorkspace declares a workspace property on a, bound to a's data service.
func DeclareWorkspace(a *Algorithm, name string, dir property.Direction, opts ...WorkspaceOption) (*WorkspaceProperty, error) {
	p, err := NewWorkspaceProperty(name, dir, a.env.ADS, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.props.Declare(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Name implements property.Property.
func (p *WorkspaceProperty) Name() string { return p.name }

// Direction implements property.Property.
func (p *WorkspaceProperty) Direction() property.Direction { return p.direction }

// Documentation implements property.Property.
func (p *WorkspaceProperty) Documentation() string { return p.doc }

// TypeName implements property.Property.
func (p *WorkspaceProperty) TypeName() string { return "Workspace" }

// IsOptional reports whether the property may stay empty.
func (p *WorkspaceProperty) IsOptional() bool { return p.optional }

// Value implements property.Property: the workspace name.
func (p *WorkspaceProperty) Value() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.wsName
}

// DefaultValue implements property.Property.
func (p *WorkspaceProperty) DefaultValue() string { return "" }

// Workspace returns the held workspace, or nil.
func (p *WorkspaceProperty) Workspace() workspace.Workspace {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ws
}

// SetValue implements property.Property.
//
// For Input and InOut, a name that does not resolve is stored and reported
// as a *kernel.ValueError so IsValid reflects it.
func (p *WorkspaceProperty) SetValue(s string) error {
	s = strings.TrimSpace(s)
	var ws workspace.Workspace
	var msg string
	if s != "" && p.direction.IsInput() {
		ws, msg = p.resolve(s)
	}

	p.mu.Lock()
	p.wsName = s
	p.ws = ws
	p.direct = false
	if msg == "" {
		p.isDefault = s == ""
	}
	p.mu.Unlock()

	if msg != "" {
		return &kernel.ValueError{Name: p.name, Value: s, Reason: msg}
	}
	return nil
}

// SetWorkspace assigns ws directly, keeping the current name.
func (p *WorkspaceProperty) SetWorkspace(ws workspace.Workspace) error {
	if ws != nil {
		if msg := p.checkKind(ws); msg != "" {
			return &kernel.TypeError{Name: p.name, Want: strings.Join(p.kinds, "|"), Got: ws.Kind()}
		}
	}
	p.mu.Lock()
	p.ws = ws
	p.direct = ws != nil
	p.isDefault = false
	p.mu.Unlock()
	return nil
}

// SetValueFromProperty implements property.Property.
func (p *WorkspaceProperty) SetValueFromProperty(other property.Property) error {
	if o, ok := other.(*WorkspaceProperty); ok {
		o.mu.RLock()
		name, ws, direct := o.wsName, o.ws, o.direct
		o.mu.RUnlock()
		if direct {
			p.mu.Lock()
			p.wsName = name
			p.mu.Unlock()
			return p.SetWorkspace(ws)
		}
		return p.SetValue(name)
	}
	return p.SetValue(other.Value())
}

// ValueAny implements property.Property; the result is a workspace.Workspace or nil.
func (p *WorkspaceProperty) ValueAny() any {
	return p.Workspace()
}

// SetValueAny implements property.Property. Accepts a name or a Workspace.
func (p *WorkspaceProperty) SetValueAny(v any) error {
	switch tv := v.(type) {
	case string:
		return p.SetValue(tv)
	case workspace.Workspace:
		return p.SetWorkspace(tv)
	case nil:
		return p.SetValue("")
	default:
		return &kernel.TypeError{Name: p.name, Want: "workspace.Workspace", Got: fmt.Sprintf("%T", v)}
	}
}

// IsDefault implements property.Property.
func (p *WorkspaceProperty) IsDefault() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isDefault
}

// IsValid implements property.Property.
//
// Input and InOut names are re-resolved so a workspace removed since the
// set is reported.
func (p *WorkspaceProperty) IsValid() string {
	p.mu.RLock()
	name, ws, direct := p.wsName, p.ws, p.direct
	p.mu.RUnlock()

	if direct {
		return p.checkKind(ws)
	}
	if name == "" {
		if p.optional {
			return ""
		}
		return fmt.Sprintf("enter a name for the %s workspace", strings.ToLower(p.direction.String()))
	}

	if !p.direction.IsInput() {
		if p.ads == nil {
			return ""
		}
		if err := p.ads.CheckName(name); err != nil {
			return err.Error()
		}
		return ""
	}

	resolved, msg := p.resolve(name)
	if msg != "" {
		return msg
	}
	p.mu.Lock()
	if p.wsName == name && !p.direct {
		p.ws = resolved
	}
	p.mu.Unlock()
	return ""
}

func (p *WorkspaceProperty) resolve(name string) (workspace.Workspace, string) {
	if p.ads == nil {
		return nil, ErrNoDataService.Error()
	}
	ws, err := p.ads.Retrieve(name)
	if err != nil {
		return nil, fmt.Sprintf("workspace %q not found", name)
	}
	if msg := p.checkKind(ws); msg != "" {
		return nil, msg
	}
	return ws, ""
}

func (p *WorkspaceProperty) checkKind(ws workspace.Workspace) string {
	if ws == nil || len(p.kinds) == 0 || slices.Contains(p.kinds, ws.Kind()) {
		return ""
	}
	return fmt.Sprintf("workspace is a %s, want %s", ws.Kind(), strings.Join(p.kinds, " or "))
}

// AllowedValues implements property.Property: matching names in the data service.
func (p *WorkspaceProperty) AllowedValues() []string {
	if p.ads == nil || !p.direction.IsInput() {
		return nil
	}
	var out []string
	for _, n := range p.ads.Names(false) {
		ws, err := p.ads.Retrieve(n)
		if err == nil && p.checkKind(ws) == "" {
			out = append(out, n)
		}
	}
	return out
}

// Clone implements property.Property.
func (p *WorkspaceProperty) Clone() property.Property {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &WorkspaceProperty{
		name:      p.name,
		doc:       p.doc,
		direction: p.direction,
		optional:  p.optional,
		kinds:     slices.Clone(p.kinds),
		ads:       p.ads,
		wsName:    p.wsName,
		ws:        p.ws,
		direct:    p.direct,
		isDefault: p.isDefault,
	}
}

// -----------------------------------------------------------------------------
// Typed access
// -----------------------------------------------------------------------------

// GetWorkspace returns the workspace held by a workspace property as a W.
//
// Outputs:
//   - error: NotFound if undeclared or empty, *kernel.TypeError if not a
//     workspace property or not a W.
func GetWorkspace[W workspace.Workspace](a *Algorithm, name string) (W, error) {
	var zero W
	p, err := a.props.Property(name)
	if err != nil {
		return zero, err
	}
	wp, ok := p.(*WorkspaceProperty)
	if !ok {
		return zero, &kernel.TypeError{Name: p.Name(), Want: "Workspace", Got: p.TypeName()}
	}
	ws := wp.Workspace()
	if ws == nil {
		return zero, kernel.NotFound("workspace property", name)
	}
	w, ok := ws.(W)
	if !ok {
		return zero, &kernel.TypeError{Name: p.Name(), Want: fmt.Sprintf("%T", zero), Got: fmt.Sprintf("%T", ws)}
	}
	return w, nil
}

// SetWorkspace assigns ws to the named workspace property.
func SetWorkspace(a *Algorithm, name string, ws workspace.Workspace) error {
	p, err := a.props.Property(name)
	if err != nil {
		return err
	}
	wp, ok := p.(*WorkspaceProperty)
	if !ok {
		return &kernel.TypeError{Name: p.Name(), Want: "Workspace", Got: p.TypeName()}
	}
	return wp.SetWorkspace(ws)
}

// workspaceProperties returns every workspace property in declaration order.
func (a *Algorithm) workspaceProperties() []*WorkspaceProperty {
	var out []*WorkspaceProperty
	for _, p := range a.props.Properties() {
		if wp, ok := p.(*WorkspaceProperty); ok {
			out = append(out, wp)
		}
	}
	return out
}
