package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDirSource_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b-widgets.json", `{"repo":"acme/widgets","run_id":42,"workflow":"hub-ci.yml","correlation_id":"corr-w"}`)
	writeFile(t, dir, "a-gadgets.yaml", "repo: acme/gadgets\nworkflow: hub-ci.yml\ncorrelation_id: corr-g\n")
	writeFile(t, dir, "c-empty.yml", "workflow: hub-ci.yml\n")
	writeFile(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	entries, err := NewDirSource(dir, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, types.DispatchEntry{Repo: "acme/gadgets", Workflow: "hub-ci.yml", CorrelationID: "corr-g"}, entries[0])
	assert.Equal(t, types.DispatchEntry{Repo: "acme/widgets", RunID: 42, Workflow: "hub-ci.yml", CorrelationID: "corr-w"}, entries[1])
}

func TestDirSource_MissingDirIsFatal(t *testing.T) {
	_, err := NewDirSource(filepath.Join(t.TempDir(), "nope"), nil).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading dispatch dir")
}

func TestDirSource_MalformedFileSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"repo":"acme/api","run_id":11,"workflow":"hub-ci.yml"}`)
	writeFile(t, dir, "b.json", `{"repo":`)
	writeFile(t, dir, "c.yaml", "repo: [acme/cli\n")
	writeFile(t, dir, "d.json", `{"repo":"acme/web","run_id":"not-a-number","workflow":"hub-ci.yml"}`)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	entries, err := NewDirSource(dir, logger).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "acme/api", entries[0].Repo)
	assert.Contains(t, logs.String(), "file=b.json")
	assert.Contains(t, logs.String(), "file=c.yaml")
	assert.Contains(t, logs.String(), "file=d.json")
}

func TestDirSource_QuotedRunID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"repo":"acme/api","run_id":"12","workflow":"hub-ci.yml"}`)
	writeFile(t, dir, "b.yaml", "repo: acme/web\nrun_id: \"34\"\nworkflow: hub-ci.yml\n")
	writeFile(t, dir, "c.yaml", "repo: acme/cli\nrun_id: 56\nworkflow: hub-ci.yml\n")

	entries, err := NewDirSource(dir, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(12), entries[0].RunID)
	assert.Equal(t, int64(34), entries[1].RunID)
	assert.Equal(t, int64(56), entries[2].RunID)
}

func TestDirSource_Empty(t *testing.T) {
	entries, err := NewDirSource(t.TempDir(), nil).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type mockDDB struct {
	queryFn func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

func (m *mockDDB) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return m.queryFn(ctx, input, opts...)
}

func item(repo, runID, workflow, corr string) map[string]ddbtypes.AttributeValue {
	m := map[string]ddbtypes.AttributeValue{
		"PK":       &ddbtypes.AttributeValueMemberS{Value: hubRunPK("hub-1")},
		"SK":       &ddbtypes.AttributeValueMemberS{Value: repoSK(repo)},
		"repo":     &ddbtypes.AttributeValueMemberS{Value: repo},
		"workflow": &ddbtypes.AttributeValueMemberS{Value: workflow},
	}
	if runID != "" {
		m["run_id"] = &ddbtypes.AttributeValueMemberN{Value: runID}
	}
	if corr != "" {
		m["correlation_id"] = &ddbtypes.AttributeValueMemberS{Value: corr}
	}
	return m
}

func TestDynamoSource_Paginates(t *testing.T) {
	var calls int
	mock := &mockDDB{queryFn: func(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
		calls++
		assert.Equal(t, "fleet-dispatch", *in.TableName)
		pk := in.ExpressionAttributeValues[":pk"].(*ddbtypes.AttributeValueMemberS)
		assert.Equal(t, "HUBRUN#hub-1", pk.Value)

		if in.ExclusiveStartKey == nil {
			return &dynamodb.QueryOutput{
				Items:            []map[string]ddbtypes.AttributeValue{item("acme/a", "101", "hub-ci.yml", "")},
				LastEvaluatedKey: map[string]ddbtypes.AttributeValue{"PK": pk, "SK": &ddbtypes.AttributeValueMemberS{Value: repoSK("acme/a")}},
			}, nil
		}
		return &dynamodb.QueryOutput{Items: []map[string]ddbtypes.AttributeValue{
			item("acme/b", "", "hub-ci.yml", "corr-b"),
			item("", "", "hub-ci.yml", ""),
		}}, nil
	}}

	src, err := NewDynamoSource(context.Background(), &types.DynamoDBConfig{TableName: "fleet-dispatch"}, "hub-1", WithDDBClient(mock))
	require.NoError(t, err)

	entries, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, entries, 2)
	assert.Equal(t, types.DispatchEntry{Repo: "acme/a", RunID: 101, Workflow: "hub-ci.yml"}, entries[0])
	assert.Equal(t, types.DispatchEntry{Repo: "acme/b", Workflow: "hub-ci.yml", CorrelationID: "corr-b"}, entries[1])
}

func TestDynamoSource_QueryError(t *testing.T) {
	mock := &mockDDB{queryFn: func(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
		return nil, errors.New("throttled")
	}}
	src, err := NewDynamoSource(context.Background(), &types.DynamoDBConfig{TableName: "t"}, "hub-1", WithDDBClient(mock))
	require.NoError(t, err)

	_, err = src.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestNewDynamoSource_Validation(t *testing.T) {
	_, err := NewDynamoSource(context.Background(), nil, "hub-1")
	assert.Error(t, err)
	_, err = NewDynamoSource(context.Background(), &types.DynamoDBConfig{TableName: "t"}, "")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "HUBRUN#abc", hubRunPK("abc"))
	assert.Equal(t, "REPO#acme/widgets", repoSK("acme/widgets"))
}
