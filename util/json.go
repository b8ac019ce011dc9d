// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package util

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
)

// ReMarshalJSON transforms data from src to dst via JSON marshalling.
func ReMarshalJSON(dst, src any) error {
	intermediate, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(intermediate, dst)
}

// PathEval is a helper to evaluate JSON paths on documents.
// A PathEval caches compiled expressions and is not safe
// for concurrent use.
type PathEval struct {
	builder gval.Language
	exprs   map[string]gval.Evaluable
}

// NewPathEval creates a new PathEval.
func NewPathEval() *PathEval {
	return &PathEval{
		builder: gval.Full(jsonpath.Language()),
		exprs:   map[string]gval.Evaluable{},
	}
}

// Compile compiles an expression and caches it.
func (pe *PathEval) Compile(expr string) (gval.Evaluable, error) {
	if eval := pe.exprs[expr]; eval != nil {
		return eval, nil
	}
	eval, err := pe.builder.NewEvaluable(expr)
	if err != nil {
		return nil, err
	}
	pe.exprs[expr] = eval
	return eval, nil
}

// Eval evalutes expression expr on document doc.
// Returns the result of the expression.
func (pe *PathEval) Eval(expr string, doc any) (any, error) {
	if doc == nil {
		return nil, errors.New("no document to extract data from")
	}
	eval, err := pe.Compile(expr)
	if err != nil {
		return nil, err
	}
	return eval(context.Background(), doc)
}

// Extract extracts a value with a given expression and stores it
// with the given action. If optional is true failing evaluations
// and actions are ignored.
func (pe *PathEval) Extract(
	expr string,
	action func(any) error,
	optional bool,
	doc any,
) error {
	optErr := func(err error) error {
		if err == nil || optional {
			return nil
		}
		return err
	}
	x, err := pe.Eval(expr, doc)
	if err != nil {
		return optErr(err)
	}
	return optErr(action(x))
}

// StringMatcher stores the matched result in a string.
func StringMatcher(dst *string) func(any) error {
	return func(x any) error {
		s, ok := x.(string)
		if !ok {
			return errors.New("not a string")
		}
		*dst = s
		return nil
	}
}

// TimeMatcher stores a time with a given format.
func TimeMatcher(dst *time.Time, format string) func(any) error {
	return func(x any) error {
		s, ok := x.(string)
		if !ok {
			return errors.New("not a string")
		}
		t, err := time.Parse(format, s)
		if err != nil {
			return err
		}
		*dst = t
		return nil
	}
}
