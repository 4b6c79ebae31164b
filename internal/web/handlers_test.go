package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/draftline/draftline/internal/engine/reader"
	"github.com/draftline/draftline/internal/engine/record"
	"github.com/draftline/draftline/internal/engine/schema"
	"github.com/draftline/draftline/internal/engine/value"
	"github.com/draftline/draftline/internal/session"
)

// fakeReader records the last read call and serves a canned page
type fakeReader struct {
	table string
	opts  reader.Options
	page  *record.Page
	err   error
}

func (f *fakeReader) Read(ctx context.Context, table string, opts reader.Options) (*record.Page, error) {
	f.table = table
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

// fakeWriter records the last mutation and serves a canned result
type fakeWriter struct {
	action   string
	table    string
	parentID int64
	liveID   int64
	payload  *value.Object
	ws       int64
	result   *record.WriteResult
	err      error
}

func (f *fakeWriter) Create(ctx context.Context, table string, parentID int64, payload *value.Object, workspaceID int64) (*record.WriteResult, error) {
	f.action, f.table, f.parentID, f.payload, f.ws = "create", table, parentID, payload, workspaceID
	return f.result, f.err
}

func (f *fakeWriter) Update(ctx context.Context, table string, liveID int64, payload *value.Object, workspaceID int64) (*record.WriteResult, error) {
	f.action, f.table, f.liveID, f.payload, f.ws = "update", table, liveID, payload, workspaceID
	return f.result, f.err
}

func (f *fakeWriter) Delete(ctx context.Context, table string, liveID int64, workspaceID int64) (*record.WriteResult, error) {
	f.action, f.table, f.liveID, f.ws = "delete", table, liveID, workspaceID
	return f.result, f.err
}

func newWebRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.TableSchema{
		Name:    "article",
		Control: schema.ControlFields{PrimaryKey: "id"},
	}))
	require.NoError(t, reg.Register(&schema.TableSchema{
		Name:     "audit",
		Control:  schema.ControlFields{PrimaryKey: "id"},
		Internal: true,
	}))
	return reg
}

type serverFixture struct {
	server   *Server
	reader   *fakeReader
	writer   *fakeWriter
	sessions *session.Manager
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	rd := &fakeReader{page: &record.Page{Table: "article"}}
	wr := &fakeWriter{result: &record.WriteResult{Action: record.ActionCreate, Table: "article", ID: 1}}
	mgr := session.NewManager(session.NewMemoryStore(), 7)

	return &serverFixture{
		server:   NewServer("127.0.0.1:0", newWebRegistry(t), rd, wr, mgr, zap.NewNop()),
		reader:   rd,
		writer:   wr,
		sessions: mgr,
	}
}

func (f *serverFixture) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}
	rec := httptest.NewRecorder()
	f.server.Routes().ServeHTTP(rec, req)
	return rec
}

func TestListTables(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/tables", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tableListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"article"}, resp.Tables)
}

func TestListRecords(t *testing.T) {
	t.Run("passes query options through", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodGet,
			"/tables/article/records?parent=5&limit=10&offset=20&fields=id,%20title&where=title%20LIKE%20%27%25x%25%27", "", "")
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, "article", f.reader.table)
		require.NotNil(t, f.reader.opts.ParentID)
		assert.Equal(t, int64(5), *f.reader.opts.ParentID)
		assert.Equal(t, 10, f.reader.opts.Limit)
		assert.Equal(t, 20, f.reader.opts.Offset)
		assert.Equal(t, []string{"id", "title"}, f.reader.opts.Fields)
		assert.Equal(t, "title LIKE '%x%'", f.reader.opts.RawPredicate)
		assert.Equal(t, int64(0), f.reader.opts.WorkspaceID)
	})

	t.Run("session token selects the workspace", func(t *testing.T) {
		f := newServerFixture(t)
		require.NoError(t, f.sessions.SetActiveWorkspace(context.Background(), "tok-1", 3))

		rec := f.do(t, http.MethodGet, "/tables/article/records", "", "tok-1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(3), f.reader.opts.WorkspaceID)
	})

	t.Run("invalid parent", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodGet, "/tables/article/records?parent=abc", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("access denied maps to 403", func(t *testing.T) {
		f := newServerFixture(t)
		f.reader.err = record.ErrAccessDenied

		rec := f.do(t, http.MethodGet, "/tables/audit/records", "", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("invalid predicate maps to 400", func(t *testing.T) {
		f := newServerFixture(t)
		f.reader.err = record.ErrInvalidPredicate

		rec := f.do(t, http.MethodGet, "/tables/article/records?where=DROP%20TABLE", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetRecord(t *testing.T) {
	t.Run("returns the single record", func(t *testing.T) {
		f := newServerFixture(t)
		r := record.New("article")
		r.Set("id", value.Int(7))
		r.Set("title", value.Text("Widget"))
		f.reader.page = &record.Page{Table: "article", Records: []*record.Record{r}, Total: 1}

		rec := f.do(t, http.MethodGet, "/tables/article/records/7", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":7,"title":"Widget"}`, rec.Body.String())

		require.NotNil(t, f.reader.opts.ID)
		assert.Equal(t, int64(7), *f.reader.opts.ID)
	})

	t.Run("not found maps to 404", func(t *testing.T) {
		f := newServerFixture(t)
		f.reader.err = record.ErrNotFound

		rec := f.do(t, http.MethodGet, "/tables/article/records/99", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-numeric id", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodGet, "/tables/article/records/abc", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateRecord(t *testing.T) {
	t.Run("creates and reports the live id", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodPost, "/tables/article/records?parent=42",
			`{"title":"Widget","price":12}`, "")
		require.Equal(t, http.StatusCreated, rec.Code)

		assert.Equal(t, "create", f.writer.action)
		assert.Equal(t, "article", f.writer.table)
		assert.Equal(t, int64(42), f.writer.parentID)

		title, ok := f.writer.payload.Get("title")
		require.True(t, ok)
		s, _ := title.AsText()
		assert.Equal(t, "Widget", s)

		var resp record.WriteResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.ID)
	})

	t.Run("validation failure maps to 422 with fields", func(t *testing.T) {
		f := newServerFixture(t)
		verr := &record.ValidationError{}
		verr.Add("title", "required")
		verr.Add("email", "invalid email")
		f.writer.err = verr

		rec := f.do(t, http.MethodPost, "/tables/article/records", `{"title":""}`, "")
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Fields, 2)
		assert.Equal(t, "title", resp.Fields[0].Field)
		assert.Equal(t, "required", resp.Fields[0].Message)
	})

	t.Run("partial failure carries the parent id", func(t *testing.T) {
		f := newServerFixture(t)
		f.writer.err = &record.PartialFailureError{Table: "article", ParentID: 9, Err: record.ErrMutationFailed}

		rec := f.do(t, http.MethodPost, "/tables/article/records", `{"title":"x"}`, "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(9), resp.ParentID)
	})

	t.Run("read-only maps to 405", func(t *testing.T) {
		f := newServerFixture(t)
		f.writer.err = record.ErrReadOnly

		rec := f.do(t, http.MethodPost, "/tables/article/records", `{"title":"x"}`, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodPost, "/tables/article/records", `{"title":`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, f.writer.action)
	})
}

func TestUpdateRecord(t *testing.T) {
	t.Run("updates under the session workspace", func(t *testing.T) {
		f := newServerFixture(t)
		f.writer.result = &record.WriteResult{Action: record.ActionUpdate, Table: "article", ID: 7}
		require.NoError(t, f.sessions.SetActiveWorkspace(context.Background(), "tok-2", 5))

		rec := f.do(t, http.MethodPut, "/tables/article/records/7", `{"title":"Renamed"}`, "tok-2")
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, "update", f.writer.action)
		assert.Equal(t, int64(7), f.writer.liveID)
		assert.Equal(t, int64(5), f.writer.ws)
	})

	t.Run("unknown field maps to 422", func(t *testing.T) {
		f := newServerFixture(t)
		f.writer.err = record.ErrUnknownField

		rec := f.do(t, http.MethodPut, "/tables/article/records/7", `{"bogus":"x"}`, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestDeleteRecord(t *testing.T) {
	f := newServerFixture(t)
	f.writer.result = &record.WriteResult{Action: record.ActionDelete, Table: "article", ID: 7}

	rec := f.do(t, http.MethodDelete, "/tables/article/records/7", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "delete", f.writer.action)
	assert.Equal(t, int64(7), f.writer.liveID)
}

func TestWorkspaceEndpoints(t *testing.T) {
	t.Run("reports live-only without a session", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodGet, "/workspace", "", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp workspaceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(0), resp.WorkspaceID)
	})

	t.Run("explicit switch", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodPut, "/workspace", `{"workspaceId":3}`, "tok-3")
		require.Equal(t, http.StatusOK, rec.Code)

		ws, err := f.sessions.ActiveWorkspace(context.Background(), "tok-3")
		require.NoError(t, err)
		assert.Equal(t, int64(3), ws)
	})

	t.Run("optimal switch pins the configured default", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodPut, "/workspace", `{"optimal":true}`, "tok-4")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp workspaceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(7), resp.WorkspaceID)
	})

	t.Run("switch requires a session token", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodPut, "/workspace", `{"workspaceId":3}`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRequestIDHeader(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/tables", "", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/tables", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	out := httptest.NewRecorder()
	f.server.Routes().ServeHTTP(out, req)
	assert.Equal(t, "fixed-id", out.Header().Get("X-Request-ID"))
}
