// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pointer

import (
	"testing"

	"github.com/shoenig/test/must"
)

func Test_Of(t *testing.T) {
	s := "hello"
	sPtr := Of(s)

	must.Eq(t, s, *sPtr)

	b := "bye"
	sPtr = &b
	must.NotEq(t, s, *sPtr)
}

func Test_Copy(t *testing.T) {
	must.Nil(t, Copy[int64](nil))

	orig := Of(int64(5))
	c := Copy(orig)
	must.Eq(t, int64(5), *c)

	*c = 6
	must.Eq(t, int64(5), *orig)
}
