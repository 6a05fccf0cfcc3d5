// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package flags

import (
	"strings"
)

// StringFlag implements the flag.Value interface and allows multiple
// calls to the same variable to append a list.
type StringFlag []string

func (s *StringFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *StringFlag) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// Split returns every value, with comma separated values expanded into
// separate entries.
func (s *StringFlag) Split() []string {
	var out []string
	for _, v := range *s {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}
