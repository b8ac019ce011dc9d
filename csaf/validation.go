// This file is Free Software under the MIT License
// without warranty, see README.md and LICENSES/MIT.txt for details.
//
// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: 2024 German Federal Office for Information Security (BSI) <https://www.bsi.bund.de>
// Software-Engineering: 2024 Intevation GmbH <https://intevation.de>

package csaf

import (
	"bytes"
	_ "embed"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/advisory.json
var advisorySchema []byte

const advisorySchemaURL = "https://csaf-harvester.invalid/schema/advisory.json"

var (
	compiledAdvisorySchema compiledSchema
)

type compiledSchema struct {
	once     sync.Once
	err      error
	compiled *jsonschema.Schema
}

func (cs *compiledSchema) compile() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(advisorySchemaURL, bytes.NewReader(advisorySchema)); err != nil {
		cs.err = err
		return
	}
	cs.compiled, cs.err = c.Compile(advisorySchemaURL)
}

func (cs *compiledSchema) validate(doc any) ([]string, error) {
	cs.once.Do(cs.compile)

	if cs.err != nil {
		return nil, cs.err
	}

	err := cs.compiled.Validate(doc)
	if err == nil {
		return nil, nil
	}

	var valErr *jsonschema.ValidationError
	if !errors.As(err, &valErr) {
		return nil, err
	}

	basic := valErr.BasicOutput()
	if basic.Valid {
		return nil, nil
	}

	errs := basic.Errors

	sort.Slice(errs, func(i, j int) bool {
		pi := errs[i].InstanceLocation
		pj := errs[j].InstanceLocation
		if strings.HasPrefix(pj, pi) {
			return true
		}
		if strings.HasPrefix(pi, pj) {
			return false
		}
		if pi != pj {
			return pi < pj
		}
		return errs[i].Error < errs[j].Error
	})

	res := make([]string, 0, len(errs))

	for i := range errs {
		e := &errs[i]
		if e.Error == "" {
			continue
		}
		loc := e.InstanceLocation
		if loc == "" {
			loc = e.AbsoluteKeywordLocation
		}
		res = append(res, loc+": "+e.Error)
	}

	return res, nil
}

// ValidateAdvisory checks the parts of an advisory document the
// harvester relies on: document must be an object and the tracking
// id, version and title have to be strings where present.
// The returned strings describe the violations. An error is only
// returned if the validation could not be performed.
func ValidateAdvisory(doc any) ([]string, error) {
	return compiledAdvisorySchema.validate(doc)
}
