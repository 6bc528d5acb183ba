// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

// Package sqlitefn registers the SQL functions qualia's query compiler
// relies on (§4.D step 4, §4.E's JSON-patch-merge requirement) on the
// modernc.org/sqlite driver. Both functions are process-global to the
// driver, matching modernc.org/sqlite's UDF registration model, so Register
// is idempotent and safe to call from every Store.Open.
package sqlitefn

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/dlclark/regexp2"
	"modernc.org/sqlite"
)

// RegexpFuncName is the SQL function name the query compiler emits calls
// to: QUALIA_REGEXP(pattern, text).
const RegexpFuncName = "QUALIA_REGEXP"

// patternCache caches compiled regexp2 patterns by their source string, so
// repeated evaluations of the same query parameter across many rows don't
// recompile the pattern each time, per §5's "UDF regex cache" rule.
type patternCache struct {
	mu    sync.Mutex
	cache map[string]*regexp2.Regexp
}

var regexCache = &patternCache{cache: make(map[string]*regexp2.Regexp)}

func (c *patternCache) get(pattern string) (*regexp2.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compiling regexp %q: %w", pattern, err)
	}
	c.cache[pattern] = re
	return re, nil
}

// asText coerces a driver.Value holding either storage class SQLite can
// hand back for a TEXT column to a string. modernc.org/sqlite binds a Go
// string parameter as TEXT but a []byte parameter as BLOB, so a column
// written through either kind of parameter can arrive here as either type;
// any other type means the value is absent or the wrong shape, which the
// caller treats as empty rather than erroring the whole query.
func asText(v driver.Value) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

var registerOnce sync.Once
var registerErr error

// Register installs QUALIA_REGEXP and QUALIA_JSON_MERGE on the
// modernc.org/sqlite driver. It is safe to call multiple times; only the
// first call actually registers the functions.
func Register() error {
	registerOnce.Do(func() {
		registerErr = registerRegexp()
		if registerErr != nil {
			return
		}
		registerErr = registerJSONMerge()
	})
	return registerErr
}

func registerRegexp() error {
	return sqlite.RegisterDeterministicScalarFunction(RegexpFuncName, 2, func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		pattern, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s: pattern argument must be a string", RegexpFuncName)
		}
		text, ok := args[1].(string)
		if !ok {
			// A NULL/non-text property (e.g. the path didn't exist)
			// never matches rather than erroring the whole query.
			return false, nil
		}
		re, err := regexCache.get(pattern)
		if err != nil {
			return nil, err
		}
		matched, err := re.MatchString(text)
		if err != nil {
			return nil, fmt.Errorf("%s: evaluating pattern %q: %w", RegexpFuncName, pattern, err)
		}
		return matched, nil
	})
}
