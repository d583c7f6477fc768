// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package viewmodel

import (
	"github.com/harborml/modeldeck/pkg/classify"
	"github.com/harborml/modeldeck/pkg/inventory"
	"github.com/harborml/modeldeck/pkg/usagestore"
)

// EnrichedModel is one installed model with every derived annotation the
// presentation layer needs. It is a read-only projection: rebuilt from the
// raw record on every refresh and on every store mutation, never edited in
// place.
type EnrichedModel struct {
	inventory.ModelRecord

	// Capabilities inferred from the name; always includes text.
	Capabilities []classify.Capability

	// Age is the recency bucket of ModifiedAt.
	Age classify.AgeCategory

	// Liberated, Duplicate and SpecialVariant are the name-derived flags.
	Liberated      bool
	Duplicate      bool
	SpecialVariant bool

	// Family summarizes the base-name group this model belongs to. Nil
	// for models with no installed siblings.
	Family *classify.FamilySummary

	// Starred and QueuedForDeletion come from the usage store.
	Starred           bool
	QueuedForDeletion bool

	// Usage carries the persisted counters; zero-valued when the model
	// has never been used through the app.
	Usage usagestore.UsageStats
}

// HasCapability reports whether the model carries the given tag.
func (m EnrichedModel) HasCapability(c classify.Capability) bool {
	return classify.HasCapability(m.Capabilities, c)
}
