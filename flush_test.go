package docsession

import (
	"testing"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
)

func TestMatchResults(t *testing.T) {
	a := assert.New(t)
	ops := []Operation{{Kind: OpPut, ID: "a"}, {Kind: OpDelete, ID: "b", Rev: "1-x"}}

	a.NoError(matchResults(ops, []Result{{ID: "a", Status: StatusOK}, {Status: StatusConflict}}))
	a.Error(matchResults(ops, []Result{{ID: "a", Status: StatusOK}}))
	a.Error(matchResults(ops, []Result{{ID: "b", Status: StatusOK}, {ID: "a", Status: StatusOK}}))
	a.Error(matchResults(ops, []Result{{ID: "a", Status: StatusOK}, {ID: "b", Status: "maybe"}}))
}

func TestFlushReportErr(t *testing.T) {
	a := assert.New(t)

	a.NoError(FlushReport{Committed: []string{"a"}}.Err())

	report := FlushReport{
		Committed: []string{"a"},
		Failed: []Failure{
			{ID: "b", Kind: StatusConflict, Detail: "revision mismatch"},
			{ID: "c", Kind: StatusError, Detail: "reserved field"},
		},
	}
	err := report.Err()
	a.ErrorIs(err, ErrConflict)
	a.ErrorIs(err, ErrRejected)
	a.False(report.Empty())

	merr, ok := err.(*multierror.Error)
	a.True(ok)
	a.Len(merr.Errors, 2)
	a.Contains(merr.Errors[0].Error(), "flush b")
}

func TestOperationString(t *testing.T) {
	a := assert.New(t)
	a.Equal("put(a)", Operation{Kind: OpPut, ID: "a"}.String())
	a.Equal("del(b@2-x)", Operation{Kind: OpDelete, ID: "b", Rev: "2-x"}.String())
}

func TestCheckFields(t *testing.T) {
	a := assert.New(t)
	a.NoError(CheckFields(Fields{"a": 1, "b_": 2}))
	a.NoError(CheckFields(nil))
	a.Error(CheckFields(Fields{"_id": "x"}))
	a.Error(CheckFields(Fields{"": 1}))
}
