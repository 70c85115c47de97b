/*
Copyright 2024 Carebridge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a prefixed UUID for a given module,
// e.g. "wrk_9b1deb4d-...", "sat_7c9e6679-...".
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// DeriveIdempotencyKey derives a deterministic idempotency key from a payee
// and the set of ledger entries being settled. Entry IDs are sorted before
// hashing, so any retry over the same pending set produces the same key no
// matter which order the entries were read in.
func DeriveIdempotencyKey(payeeID string, entryIDs []string) string {
	ids := make([]string, len(entryIDs))
	copy(ids, entryIDs)
	sort.Strings(ids)

	data := payeeID + "|" + strings.Join(ids, "|")
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
