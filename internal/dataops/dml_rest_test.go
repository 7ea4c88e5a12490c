package dataops

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muselabdx/forceflow/internal/salesforce/rest"
)

func newRestOp(t *testing.T, kind OperationKind, options Options, fields []string, svc *fakeRestService) *RestDmlOperation {
	t.Helper()
	op, err := NewRestDmlOperation(context.Background(), "Account", kind, options, fields, svc, testLogger(t))
	require.NoError(t, err)
	return op
}

func payloadsOf(t *testing.T, call collectionCall) []map[string]any {
	t.Helper()
	body, ok := call.body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, body["allOrNone"])
	payloads, ok := body["records"].([]map[string]any)
	require.True(t, ok)
	return payloads
}

// =============================================================================
// BATCH SIZING
// =============================================================================

func TestRestDmlBatchSizeCapped(t *testing.T) {
	svc := &fakeRestService{}
	op := newRestOp(t, KindInsert, Options{BatchSize: 5000}, []string{"Name"}, svc)
	assert.Equal(t, MaxRestBatchSize, op.options.BatchSize)

	op = newRestOp(t, KindInsert, Options{}, []string{"Name"}, svc)
	assert.Equal(t, DefaultRestBatchSize, op.options.BatchSize)
}

// =============================================================================
// PAYLOAD CONVERSION
// =============================================================================

func TestRestDmlInsertDropsEmptyFields(t *testing.T) {
	svc := &fakeRestService{
		collections: []rest.CollectionResult{{ID: "001", Success: true}},
	}
	op := newRestOp(t, KindInsert, Options{}, []string{"Name", "Phone"}, svc)

	require.NoError(t, op.LoadRecords(context.Background(), NewSliceIterator([][]string{{"Acme", ""}})))

	require.Len(t, svc.collectionCalls, 1)
	call := svc.collectionCalls[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "", call.suffix)

	payloads := payloadsOf(t, call)
	require.Len(t, payloads, 1)
	assert.Equal(t, "Acme", payloads[0]["Name"])
	_, present := payloads[0]["Phone"]
	assert.False(t, present, "empty fields are omitted on insert")
	assert.Equal(t, map[string]any{"type": "Account"}, payloads[0]["attributes"])
}

func TestRestDmlUpdateNullsEmptyFields(t *testing.T) {
	svc := &fakeRestService{
		collections: []rest.CollectionResult{{ID: "001", Success: true}},
	}
	op := newRestOp(t, KindUpdate, Options{}, []string{"Id", "Phone"}, svc)

	require.NoError(t, op.LoadRecords(context.Background(), NewSliceIterator([][]string{{"001", ""}})))

	call := svc.collectionCalls[0]
	assert.Equal(t, http.MethodPatch, call.method)

	payloads := payloadsOf(t, call)
	phone, present := payloads[0]["Phone"]
	assert.True(t, present, "empty fields become explicit nulls on update")
	assert.Nil(t, phone)
}

func TestRestDmlBooleanCoercion(t *testing.T) {
	svc := &fakeRestService{
		describe:    map[string]rest.Field{"IsActive": {Name: "IsActive", Type: "boolean"}},
		collections: []rest.CollectionResult{{ID: "001", Success: true}},
	}
	op := newRestOp(t, KindInsert, Options{}, []string{"Name", "IsActive"}, svc)

	require.NoError(t, op.LoadRecords(context.Background(), NewSliceIterator([][]string{{"Acme", "yes"}})))

	payloads := payloadsOf(t, svc.collectionCalls[0])
	assert.Equal(t, true, payloads[0]["IsActive"])
}

func TestRestDmlBooleanCoercionRejectsGarbage(t *testing.T) {
	svc := &fakeRestService{
		describe: map[string]rest.Field{"IsActive": {Name: "IsActive", Type: "boolean"}},
	}
	op := newRestOp(t, KindInsert, Options{}, []string{"IsActive"}, svc)

	err := op.LoadRecords(context.Background(), NewSliceIterator([][]string{{"maybe"}}))
	require.Error(t, err)
	var opErr *Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, CodeMalformedValue, opErr.Code)
}

// =============================================================================
// VERB ROUTING
// =============================================================================

func TestRestDmlDeleteUsesIdsParameter(t *testing.T) {
	svc := &fakeRestService{
		collections: []rest.CollectionResult{{ID: "001", Success: true}, {ID: "002", Success: true}},
	}
	op := newRestOp(t, KindDelete, Options{}, []string{"Id"}, svc)

	require.NoError(t, op.LoadRecords(context.Background(), NewSliceIterator([][]string{{"001"}, {"002"}})))

	call := svc.collectionCalls[0]
	assert.Equal(t, http.MethodDelete, call.method)
	assert.Equal(t, "?ids=001,002", call.suffix)
	assert.Nil(t, call.body)
}

func TestRestDmlDeleteRequiresIdField(t *testing.T) {
	svc := &fakeRestService{}
	op := newRestOp(t, KindDelete, Options{}, []string{"Name"}, svc)

	err := op.LoadRecords(context.Background(), NewSliceIterator([][]string{{"Acme"}}))
	require.Error(t, err)
	var opErr *Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, CodeMissingField, opErr.Code)
}

func TestRestDmlUpsertUsesUpdateKeyPath(t *testing.T) {
	svc := &fakeRestService{
		collections: []rest.CollectionResult{{ID: "001", Success: true}},
	}
	op := newRestOp(t, KindUpsert, Options{UpdateKey: "External_Id__c"}, []string{"External_Id__c", "Name"}, svc)

	require.NoError(t, op.LoadRecords(context.Background(), NewSliceIterator([][]string{{"k-1", "Acme"}})))

	call := svc.collectionCalls[0]
	assert.Equal(t, http.MethodPatch, call.method)
	assert.Equal(t, "/Account/External_Id__c", call.suffix)
}

func TestRestDmlUpdateKeyOutsideUpsertPanics(t *testing.T) {
	svc := &fakeRestService{}
	op := newRestOp(t, KindUpdate, Options{UpdateKey: "External_Id__c"}, []string{"External_Id__c"}, svc)

	assert.Panics(t, func() {
		_ = op.LoadRecords(context.Background(), NewSliceIterator([][]string{{"k-1"}}))
	})
}

func TestRestDmlHardDeleteUnsupported(t *testing.T) {
	svc := &fakeRestService{}
	op := newRestOp(t, KindHardDelete, Options{}, []string{"Id"}, svc)

	err := op.LoadRecords(context.Background(), NewSliceIterator([][]string{{"001"}}))
	require.Error(t, err)
	var opErr *Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, CodeUnsupportedOperation, opErr.Code)
}

// =============================================================================
// RESULTS
// =============================================================================

func TestRestDmlResultClassification(t *testing.T) {
	svc := &fakeRestService{
		collections: []rest.CollectionResult{
			{ID: "001", Success: true},
			{Success: false, Errors: []rest.CollectionError{
				{StatusCode: "DUPLICATE_VALUE", Message: "dup", Fields: []string{"Name"}},
				{StatusCode: "REQUIRED_FIELD_MISSING", Message: "missing", Fields: []string{"Phone", "Fax"}},
			}},
		},
	}
	op := newRestOp(t, KindInsert, Options{}, []string{"Name"}, svc)

	require.NoError(t, op.LoadRecords(context.Background(), NewSliceIterator([][]string{{"a"}, {"b"}})))

	result := op.Result()
	require.NotNil(t, result)
	assert.Equal(t, StatusRowFailure, result.Status)
	assert.Equal(t, 2, result.RecordsProcessed)
	assert.Equal(t, 1, result.TotalRowErrors)

	results, err := op.GetResults(context.Background())
	require.NoError(t, err)
	defer results.Close()

	require.True(t, results.Next())
	first := results.Value()
	assert.True(t, first.Success)
	require.NotNil(t, first.Created)
	assert.True(t, *first.Created, "insert results always report created")

	require.True(t, results.Next())
	second := results.Value()
	assert.False(t, second.Success)
	assert.Equal(t, "DUPLICATE_VALUE: dup (Name)\nREQUIRED_FIELD_MISSING: missing (Phone,Fax)", second.Error)
	assert.False(t, results.Next())
}

// =============================================================================
// SELECT
// =============================================================================

func TestRestDmlSelectPadsCyclically(t *testing.T) {
	svc := &fakeRestService{
		queryPages: map[string]*rest.QueryResult{
			"SELECT Id FROM Account WHERE Name != 'Sample Account for Entitlements' LIMIT 5": {
				Done:    true,
				Records: []map[string]any{{"Id": "001"}, {"Id": "002"}},
			},
		},
	}
	op := newRestOp(t, KindSelect, Options{}, []string{"Name"}, svc)

	rows := [][]string{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}
	require.NoError(t, op.SelectRecords(context.Background(), NewSliceIterator(rows)))

	result := op.Result()
	require.NotNil(t, result)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 5, result.RecordsProcessed)

	results, err := op.GetResults(context.Background())
	require.NoError(t, err)
	defer results.Close()

	var ids []string
	for results.Next() {
		res := results.Value()
		assert.True(t, res.Success)
		ids = append(ids, res.ID)
	}
	assert.Equal(t, []string{"001", "002", "001", "002", "001"}, ids)
}

func TestRestDmlSelectAppliesDefaultDeclaration(t *testing.T) {
	svc := &fakeRestService{
		queryPages: map[string]*rest.QueryResult{},
	}
	op, err := NewRestDmlOperation(context.Background(), "User", KindSelect, Options{}, []string{"Name"}, svc, testLogger(t))
	require.NoError(t, err)

	_ = op.SelectRecords(context.Background(), NewSliceIterator([][]string{{"a"}}))

	require.NotEmpty(t, svc.queries)
	assert.Contains(t, svc.queries[0], "SELECT Id FROM User WHERE")
	assert.Contains(t, svc.queries[0], "LIMIT 1")
}

func TestRestDmlSelectNoMatchesIsJobFailure(t *testing.T) {
	svc := &fakeRestService{
		queryPages: map[string]*rest.QueryResult{
			"SELECT Id FROM Account WHERE Name != 'Sample Account for Entitlements' LIMIT 2": {Done: true},
		},
	}
	op := newRestOp(t, KindSelect, Options{}, []string{"Name"}, svc)

	require.NoError(t, op.SelectRecords(context.Background(), NewSliceIterator([][]string{{"a"}, {"b"}})))

	result := op.Result()
	require.NotNil(t, result)
	assert.Equal(t, StatusJobFailure, result.Status)
	assert.Equal(t, 0, result.RecordsProcessed)
}

// =============================================================================
// PREVIOUS RECORD VALUES
// =============================================================================

func TestRestDmlGetPrevRecordValues(t *testing.T) {
	svc := &fakeRestService{
		queryPages: map[string]*rest.QueryResult{
			"SELECT Id, Phone FROM Account WHERE Id IN ('001', '002')": {
				Done: true,
				Records: []map[string]any{
					{"Id": "001", "Phone": "555-0100"},
					{"Id": "002", "Phone": nil},
				},
			},
		},
	}
	op := newRestOp(t, KindUpdate, Options{}, []string{"Id", "Phone"}, svc)

	rows := [][]string{{"001", "x"}, {"002", "y"}, {"", "skipped"}}
	prev, fields, err := op.GetPrevRecordValues(context.Background(), NewSliceIterator(rows))
	require.NoError(t, err)

	assert.Equal(t, []string{"Id", "Phone"}, fields)
	assert.Equal(t, [][]string{{"001", "555-0100"}, {"002", ""}}, prev)
}

func TestRestDmlGetPrevRecordValuesPanicsForDelete(t *testing.T) {
	svc := &fakeRestService{}
	op := newRestOp(t, KindDelete, Options{}, []string{"Id"}, svc)

	assert.Panics(t, func() {
		_, _, _ = op.GetPrevRecordValues(context.Background(), NewSliceIterator(nil))
	})
}
