// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package helper

import (
	"testing"

	"github.com/hashicorp/hcl"
	"github.com/hashicorp/hcl/hcl/ast"
	"github.com/shoenig/test/must"
)

func TestCheckHCLKeys(t *testing.T) {
	root, err := hcl.ParseString(`
name  = "a"
kind  = "b"
bogus = 1
other = 2
`)
	must.NoError(t, err)
	list := root.Node.(*ast.ObjectList)

	must.NoError(t, CheckHCLKeys(list, []string{"name", "kind", "bogus", "other"}))

	err = CheckHCLKeys(list, []string{"name", "kind"})
	must.ErrorContains(t, err, "invalid key: bogus")
	must.ErrorContains(t, err, "invalid key: other")

	err = CheckHCLKeys(&ast.LiteralType{}, nil)
	must.ErrorContains(t, err, "cannot check HCL keys")
}

func TestRemoveEqualFoldKey(t *testing.T) {
	m := map[string]int{"foo": 1, "Bar": 2, "baz": 3}
	RemoveEqualFoldKey(m, "bar")
	must.MapContainsKeys(t, m, []string{"foo", "baz"})
	must.MapLen(t, 2, m)

	RemoveEqualFoldKey(m, "missing")
	must.MapLen(t, 2, m)

	RemoveEqualFoldKey(m, "FOO")
	RemoveEqualFoldKey(m, "baz")
	must.MapEmpty(t, m)

	// A nil map is left alone.
	RemoveEqualFoldKey[int](nil, "foo")
}
