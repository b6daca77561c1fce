package hs2

import (
	"context"
	"sync"
	"testing"

	"github.com/beltran/gohive/hiveserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hue-gateway/internal/domain"
)

func okStatus() *hiveserver.TStatus {
	return &hiveserver.TStatus{StatusCode: hiveserver.TStatusCode_SUCCESS_STATUS}
}

func errStatus(msg string) *hiveserver.TStatus {
	return &hiveserver.TStatus{StatusCode: hiveserver.TStatusCode_ERROR_STATUS, ErrorMessage: &msg}
}

type fakeService struct {
	mu sync.Mutex

	openReq      *hiveserver.TOpenSessionReq
	executed     []string
	fetchReqs    []*hiveserver.TFetchResultsReq
	canceled     int
	closedOps    int
	closedSess   int
	state        hiveserver.TOperationState
	cancelStatus *hiveserver.TStatus
	schema       *hiveserver.TTableSchema
	results      *hiveserver.TRowSet
	logLines     []string
	hasMore      *bool
}

func newFakeService() *fakeService {
	return &fakeService{state: hiveserver.TOperationState_FINISHED_STATE}
}

func (f *fakeService) OpenSession(_ context.Context, req *hiveserver.TOpenSessionReq) (*hiveserver.TOpenSessionResp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openReq = req
	return &hiveserver.TOpenSessionResp{
		Status:        okStatus(),
		SessionHandle: &hiveserver.TSessionHandle{SessionId: &hiveserver.THandleIdentifier{GUID: []byte("s"), Secret: []byte("s")}},
	}, nil
}

func (f *fakeService) CloseSession(context.Context, *hiveserver.TCloseSessionReq) (*hiveserver.TCloseSessionResp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedSess++
	return &hiveserver.TCloseSessionResp{Status: okStatus()}, nil
}

func (f *fakeService) ExecuteStatement(_ context.Context, req *hiveserver.TExecuteStatementReq) (*hiveserver.TExecuteStatementResp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, req.Statement)
	return &hiveserver.TExecuteStatementResp{
		Status: okStatus(),
		OperationHandle: &hiveserver.TOperationHandle{
			OperationId:   &hiveserver.THandleIdentifier{GUID: []byte{1, 2}, Secret: []byte{3, 4}},
			OperationType: hiveserver.TOperationType_EXECUTE_STATEMENT,
			HasResultSet:  true,
		},
	}, nil
}

func (f *fakeService) GetOperationStatus(context.Context, *hiveserver.TGetOperationStatusReq) (*hiveserver.TGetOperationStatusResp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.state
	msg := ""
	if state == hiveserver.TOperationState_ERROR_STATE {
		msg = "SemanticException table not found"
	}
	return &hiveserver.TGetOperationStatusResp{Status: okStatus(), OperationState: &state, ErrorMessage: &msg}, nil
}

func (f *fakeService) CancelOperation(context.Context, *hiveserver.TCancelOperationReq) (*hiveserver.TCancelOperationResp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled++
	status := f.cancelStatus
	if status == nil {
		status = okStatus()
	}
	return &hiveserver.TCancelOperationResp{Status: status}, nil
}

func (f *fakeService) CloseOperation(context.Context, *hiveserver.TCloseOperationReq) (*hiveserver.TCloseOperationResp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedOps++
	return &hiveserver.TCloseOperationResp{Status: okStatus()}, nil
}

func (f *fakeService) GetResultSetMetadata(context.Context, *hiveserver.TGetResultSetMetadataReq) (*hiveserver.TGetResultSetMetadataResp, error) {
	return &hiveserver.TGetResultSetMetadataResp{Status: okStatus(), Schema: f.schema}, nil
}

func (f *fakeService) FetchResults(_ context.Context, req *hiveserver.TFetchResultsReq) (*hiveserver.TFetchResultsResp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchReqs = append(f.fetchReqs, req)
	if req.FetchType == fetchTypeLog {
		return &hiveserver.TFetchResultsResp{
			Status:  okStatus(),
			Results: &hiveserver.TRowSet{Columns: []*hiveserver.TColumn{{StringVal: &hiveserver.TStringColumn{Values: f.logLines}}}},
		}, nil
	}
	return &hiveserver.TFetchResultsResp{Status: okStatus(), Results: f.results, HasMoreRows: f.hasMore}, nil
}

func primitive(t hiveserver.TTypeId) *hiveserver.TTypeDesc {
	return &hiveserver.TTypeDesc{Types: []*hiveserver.TTypeEntry{{PrimitiveEntry: &hiveserver.TPrimitiveTypeEntry{Type: t}}}}
}

func openTestClient(t *testing.T, svc *fakeService, server domain.QueryServer) *Client {
	t.Helper()
	c, err := OpenSession(context.Background(), svc, nil, server, "alice", nil)
	require.NoError(t, err)
	return c
}

func hiveServer() domain.QueryServer {
	return domain.QueryServer{Name: "beeswax", Type: domain.ServerTypeBeeswax, Host: "h", Port: 10000}
}

func TestOpenSession_SetsProxyUser(t *testing.T) {
	svc := newFakeService()
	openTestClient(t, svc, hiveServer())

	require.NotNil(t, svc.openReq)
	assert.Equal(t, "alice", *svc.openReq.Username)
	assert.Equal(t, "alice", svc.openReq.Configuration["hive.server2.proxy.user"])
	assert.Equal(t, hiveserver.TProtocolVersion_HIVE_CLI_SERVICE_PROTOCOL_V6, svc.openReq.ClientProtocol)

	impalaSvc := newFakeService()
	openTestClient(t, impalaSvc, domain.QueryServer{Name: "impala", Type: domain.ServerTypeImpala})
	assert.Equal(t, "alice", impalaSvc.openReq.Configuration["impala.doas.user"])
	assert.NotContains(t, impalaSvc.openReq.Configuration, "hive.server2.proxy.user")
}

func TestClient_ExecuteAndPoll(t *testing.T) {
	svc := newFakeService()
	c := openTestClient(t, svc, hiveServer())
	ctx := context.Background()

	h, err := c.ExecuteStatement(ctx, "SELECT 1", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, h.GUID)
	assert.Equal(t, []byte{3, 4}, h.Secret)
	assert.True(t, h.HasResultSet)
	assert.Equal(t, int(hiveserver.TOperationType_EXECUTE_STATEMENT), h.OperationType)

	svc.state = hiveserver.TOperationState_RUNNING_STATE
	status, err := c.GetOperationStatus(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationRunning, status.State)
	assert.Equal(t, domain.QueryStateRunning, status.State.QueryState())

	svc.state = hiveserver.TOperationState_ERROR_STATE
	status, err = c.GetOperationStatus(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, domain.QueryStateFailed, status.State.QueryState())
	assert.Contains(t, status.ErrorMessage, "SemanticException")
}

func TestClient_FetchResultsDecodesColumns(t *testing.T) {
	svc := newFakeService()
	svc.schema = &hiveserver.TTableSchema{Columns: []*hiveserver.TColumnDesc{
		{ColumnName: "id", TypeDesc: primitive(hiveserver.TTypeId_INT_TYPE), Position: 1},
		{ColumnName: "name", TypeDesc: primitive(hiveserver.TTypeId_STRING_TYPE), Position: 2},
	}}
	svc.results = &hiveserver.TRowSet{Columns: []*hiveserver.TColumn{
		{I32Val: &hiveserver.TI32Column{Values: []int32{1, 2, 3}, Nulls: []byte{}}},
		// second row of name is NULL: bit 1 set
		{StringVal: &hiveserver.TStringColumn{Values: []string{"a", "", "c"}, Nulls: []byte{0x02}}},
	}}
	c := openTestClient(t, svc, hiveServer())
	h := &domain.QueryHandle{GUID: []byte{1}, Secret: []byte{2}, HasResultSet: true}

	rs, err := c.FetchResults(context.Background(), h, true, 3)
	require.NoError(t, err)
	require.Len(t, rs.Columns, 2)
	assert.Equal(t, domain.ColumnMeta{Name: "id", Type: "INT_TYPE"}, rs.Columns[0])
	assert.Equal(t, "STRING_TYPE", rs.Columns[1].Type)
	assert.Equal(t, [][]any{{int32(1), "a"}, {int32(2), nil}, {int32(3), "c"}}, rs.Rows)
	assert.True(t, rs.HasMore, "full page without hasMoreRows reports more")

	require.Len(t, svc.fetchReqs, 1)
	assert.Equal(t, hiveserver.TFetchOrientation_FETCH_FIRST, svc.fetchReqs[0].Orientation)

	no := false
	svc.hasMore = &no
	rs, err = c.FetchResults(context.Background(), h, false, 3)
	require.NoError(t, err)
	assert.False(t, rs.HasMore)
	assert.Equal(t, hiveserver.TFetchOrientation_FETCH_NEXT, svc.fetchReqs[1].Orientation)
}

func TestClient_GetLog(t *testing.T) {
	svc := newFakeService()
	svc.logLines = []string{"INFO : Compiling", "INFO : Total jobs = 1"}
	c := openTestClient(t, svc, hiveServer())

	log, err := c.GetLog(context.Background(), &domain.QueryHandle{GUID: []byte{1}, Secret: []byte{2}}, true)
	require.NoError(t, err)
	assert.Equal(t, "INFO : Compiling\nINFO : Total jobs = 1", log)
	require.Len(t, svc.fetchReqs, 1)
	assert.Equal(t, fetchTypeLog, svc.fetchReqs[0].FetchType)
}

func TestClient_CancelReportsServerError(t *testing.T) {
	svc := newFakeService()
	svc.cancelStatus = errStatus("Invalid OperationHandle: OperationHandle [opType=EXECUTE_STATEMENT]")
	c := openTestClient(t, svc, hiveServer())

	err := c.CancelOperation(context.Background(), &domain.QueryHandle{GUID: []byte{1}, Secret: []byte{2}})
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "ERROR_STATUS", statusErr.Code)
	assert.Contains(t, err.Error(), "Invalid OperationHandle")
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	svc := newFakeService()
	c := openTestClient(t, svc, hiveServer())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, svc.closedSess)

	_, err := c.ExecuteStatement(context.Background(), "SELECT 1", nil)
	var expired *domain.SessionExpiredError
	require.ErrorAs(t, err, &expired)
}

func TestClient_GetDefaultConfiguration(t *testing.T) {
	svc := newFakeService()
	svc.schema = &hiveserver.TTableSchema{Columns: []*hiveserver.TColumnDesc{
		{ColumnName: "set", TypeDesc: primitive(hiveserver.TTypeId_STRING_TYPE)},
	}}
	svc.results = &hiveserver.TRowSet{Columns: []*hiveserver.TColumn{
		{StringVal: &hiveserver.TStringColumn{Values: []string{"hive.execution.engine=tez", "SUPPORT_START_OVER=false", "garbage"}}},
	}}
	c := openTestClient(t, svc, hiveServer())

	conf, err := c.GetDefaultConfiguration(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "tez", conf["hive.execution.engine"])
	assert.Equal(t, "false", conf["support_start_over"])
	assert.Len(t, conf, 2)
	assert.Equal(t, []string{"SET"}, svc.executed)
	assert.Equal(t, 1, svc.closedOps)
}

func TestParseConfiguration_TwoColumns(t *testing.T) {
	conf := parseConfiguration([][]any{{"MEM_LIMIT", "0", "REGULAR"}, {"SUPPORT_START_OVER", "false", "ADVANCED"}})
	assert.Equal(t, map[string]string{"mem_limit": "0", "support_start_over": "false"}, conf)
}

func TestDecodeColumns_MismatchedLengths(t *testing.T) {
	_, err := decodeColumns([]*hiveserver.TColumn{
		{I64Val: &hiveserver.TI64Column{Values: []int64{1, 2}}},
		{BoolVal: &hiveserver.TBoolColumn{Values: []bool{true}}},
	})
	require.Error(t, err)
}

func TestDecodeColumns_Types(t *testing.T) {
	rows, err := decodeColumns([]*hiveserver.TColumn{
		{BoolVal: &hiveserver.TBoolColumn{Values: []bool{true}}},
		{DoubleVal: &hiveserver.TDoubleColumn{Values: []float64{1.5}}},
		{BinaryVal: &hiveserver.TBinaryColumn{Values: [][]byte{[]byte("raw")}}},
		{I16Val: &hiveserver.TI16Column{Values: []int16{7}, Nulls: []byte{0x01}}},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{true, 1.5, "raw", nil}}, rows)
}

func TestHandleRoundTrip(t *testing.T) {
	rows := 4.0
	h := &domain.QueryHandle{GUID: []byte{9}, Secret: []byte{8}, OperationType: 0, HasResultSet: false, ModifiedRowCount: &rows}
	back := fromThriftHandle(toThriftHandle(h))
	assert.Equal(t, h, back)
	assert.Nil(t, fromThriftHandle(nil))
}
