package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ria-search/internal/store/postgres"
)

type fakeAuditor struct {
	issues        []postgres.EmbeddingIssue
	total, usable int
	err           error
	gotLimit      int
}

func (f *fakeAuditor) AuditEmbeddings(_ context.Context, limit int) ([]postgres.EmbeddingIssue, error) {
	f.gotLimit = limit
	return f.issues, f.err
}

func (f *fakeAuditor) CountEmbeddings(context.Context) (int, int, error) {
	return f.total, f.usable, f.err
}

func TestRunReport(t *testing.T) {
	issues := []postgres.EmbeddingIssue{
		{CRD: 250, NarrativeID: 10, Reason: postgres.IssueMissing},
		{CRD: 793, NarrativeID: 11, Width: 3, Reason: postgres.IssueDimension},
	}

	t.Run("table", func(t *testing.T) {
		a := &fakeAuditor{issues: issues}
		var out bytes.Buffer
		require.NoError(t, runReport(context.Background(), a, &out, &options{limit: 25}))

		assert.Equal(t, 25, a.gotLimit)
		assert.Contains(t, out.String(), "CRD")
		assert.Contains(t, out.String(), "missing")
		assert.Contains(t, out.String(), "dimension")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runReport(context.Background(), &fakeAuditor{issues: issues}, &out, &options{asJSON: true}))

		var got []postgres.EmbeddingIssue
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, issues, got)
	})

	t.Run("clean", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runReport(context.Background(), &fakeAuditor{}, &out, &options{failOnIssues: true}))
		assert.Contains(t, out.String(), "usable embedding")
	})

	t.Run("fail on issues", func(t *testing.T) {
		var out bytes.Buffer
		err := runReport(context.Background(), &fakeAuditor{issues: issues}, &out, &options{failOnIssues: true})
		assert.ErrorIs(t, err, errIssuesFound)
	})

	t.Run("store error", func(t *testing.T) {
		boom := errors.New("connection refused")
		err := runReport(context.Background(), &fakeAuditor{err: boom}, &bytes.Buffer{}, &options{})
		assert.ErrorIs(t, err, boom)
	})
}

func TestRunStats(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runStats(context.Background(), &fakeAuditor{total: 8, usable: 6}, &out, &options{asJSON: true}))

	var got statsOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, statsOutput{Total: 8, Usable: 6, Unusable: 2, Coverage: 0.75}, got)

	out.Reset()
	require.NoError(t, runStats(context.Background(), &fakeAuditor{}, &out, &options{}))
	assert.Contains(t, out.String(), "coverage:   0.0%")
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"report", "stats"}, names)

	report, _, err := root.Find([]string{"report"})
	require.NoError(t, err)
	assert.NotNil(t, report.Flags().Lookup("fail-on-issues"))
}
