// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package sqlitefn

import (
	"database/sql/driver"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"modernc.org/sqlite"
)

// JSONMergeFuncName is the SQL function name MutableCollection.set's bulk
// UPDATE calls: QUALIA_JSON_MERGE(properties, patch). It merges patch into
// properties one top-level key at a time: each key of patch is set to
// patch's value, replacing whatever properties held there. Nested objects
// are replaced whole, not merged recursively. It never deletes a key a
// patch names with a value (§9: "null does not delete" — there is no null
// PropValue to delete with, so a present key in patch always ends up set).
const JSONMergeFuncName = "QUALIA_JSON_MERGE"

func registerJSONMerge() error {
	return sqlite.RegisterDeterministicScalarFunction(JSONMergeFuncName, 2, func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		properties := asText(args[0])
		if properties == "" {
			properties = "{}"
		}
		patch := asText(args[1])
		if patch == "" {
			return properties, nil
		}

		patchResult := gjson.Parse(patch)
		if !patchResult.IsObject() {
			return nil, fmt.Errorf("%s: patch is not a JSON object", JSONMergeFuncName)
		}

		merged := properties
		var mergeErr error
		patchResult.ForEach(func(key, value gjson.Result) bool {
			merged, mergeErr = sjson.SetRaw(merged, key.String(), value.Raw)
			return mergeErr == nil
		})
		if mergeErr != nil {
			return nil, fmt.Errorf("%s: merging patch: %w", JSONMergeFuncName, mergeErr)
		}
		return merged, nil
	})
}
