package crudlspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"
)

// newTestDB opens a per-test in-memory SQLite database and migrates the
// catalog models. The named shared-cache DSN keeps every pooled connection on
// the same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlog.Default.LogMode(gormlog.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&testPublisher{}, &testAuthor{}, &testBook{}))
	return db
}

func newTestRouter(t *testing.T, db *gorm.DB, cfgs ...*Config) *mux.Router {
	t.Helper()

	r := mux.NewRouter()
	for _, cfg := range cfgs {
		controller, err := AssembleWithGORM(db, cfg)
		require.NoError(t, err)
		SetupMuxRoutes(r, nil, controller)
	}
	return r
}

func publisherConfig(policies ...Policy) *Config {
	return &Config{
		Model: testPublisher{},
		CreateFields: FieldSelection{
			"name":    Infer,
			"address": Infer,
		},
		GetOneFields:  AllFields(testPublisher{}),
		UpdateFields:  FieldSelection{"name": Infer, "address": Infer},
		ListFields:    AllFields(testPublisher{}),
		DeleteAllowed: true,
		Policies:      policies,
	}
}

func bookConfig(policies ...Policy) *Config {
	return &Config{
		Model: testBook{},
		CreateFields: FieldSelection{
			"title":     Infer,
			"isbn":      Infer,
			"publisher": Infer,
			"authors":   Infer,
		},
		GetOneFields: FieldSelection{
			"id":    Infer,
			"title": Infer,
			"publisher": FieldSelection{
				"id":   Infer,
				"name": Infer,
			},
			"authors": FieldSelection{
				"id":   Infer,
				"name": Infer,
			},
		},
		UpdateFields: FieldSelection{
			"title":     Infer,
			"publisher": Infer,
			"authors":   Infer,
		},
		ListFields:    FieldSelection{"id": Infer, "title": Infer, "publisher": Infer},
		DeleteAllowed: true,
		Policies:      policies,
	}
}

func doJSON(t *testing.T, r *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeObject(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()

	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestCreateReturnsPrimaryKeyOnly(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db, publisherConfig())

	rr := doJSON(t, r, "POST", "/test_publishers", map[string]interface{}{
		"name":    "Acme",
		"address": "1 Acme Road",
	})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decodeObject(t, rr)
	assert.Equal(t, float64(1), body["id"])
	assert.Len(t, body, 1, "create echoes only the primary key by default")

	var saved testPublisher
	require.NoError(t, db.First(&saved, 1).Error)
	assert.Equal(t, "Acme", saved.Name)
	assert.Equal(t, "1 Acme Road", saved.Address)
}

func TestCreateMissingRequiredField(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db, publisherConfig())

	rr := doJSON(t, r, "POST", "/test_publishers", map[string]interface{}{
		"address": "1 Acme Road",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decodeObject(t, rr)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "UnprocessableEntity", body["code"])

	details := body["details"].([]interface{})
	require.Len(t, details, 1)
	entry := details[0].(map[string]interface{})
	assert.Equal(t, []interface{}{"body", "payload", "name"}, entry["loc"])
	assert.Equal(t, "missing", entry["type"])
}

func TestCreateInvalidJSON(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db, publisherConfig())

	req := httptest.NewRequest("POST", "/test_publishers", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "UnprocessableEntity", decodeObject(t, rr)["code"])
}

func TestCreateDuplicateRollsBack(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db, publisherConfig())

	rr := doJSON(t, r, "POST", "/test_publishers", map[string]interface{}{
		"name": "Acme", "address": "original",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, r, "POST", "/test_publishers", map[string]interface{}{
		"name": "Acme", "address": "second attempt",
	})
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())
	assert.Equal(t, "Conflict", decodeObject(t, rr)["code"])

	var count int64
	require.NoError(t, db.Model(&testPublisher{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var saved testPublisher
	require.NoError(t, db.First(&saved, "name = ?", "Acme").Error)
	assert.Equal(t, "original", saved.Address, "the first row survives untouched")
}

func TestGetOne(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testPublisher{Name: "Acme", Address: "1 Acme Road"}).Error)
	r := newTestRouter(t, db, publisherConfig())

	rr := doJSON(t, r, "GET", "/test_publishers/1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeObject(t, rr)
	assert.Equal(t, float64(1), body["id"])
	assert.Equal(t, "Acme", body["name"])
	assert.Equal(t, "1 Acme Road", body["address"])
}

func TestGetOneNotFound(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db, publisherConfig())

	for _, id := range []string{"999", "abc"} {
		rr := doJSON(t, r, "GET", "/test_publishers/"+id, nil)
		require.Equal(t, http.StatusNotFound, rr.Code, "id %q", id)
		body := decodeObject(t, rr)
		assert.Equal(t, "ResourceNotFound", body["code"])
		assert.NotEmpty(t, body["request_id"])
	}
}

func TestRequestIDEcho(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db, publisherConfig())

	req := httptest.NewRequest("GET", "/test_publishers/999", nil)
	req.Header.Set("X-Request-ID", "trace-me-123")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "trace-me-123", decodeObject(t, rr)["request_id"])
}

func TestUpdateReplacesFields(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testPublisher{Name: "Acme", Address: "old"}).Error)
	r := newTestRouter(t, db, publisherConfig())

	rr := doJSON(t, r, "PUT", "/test_publishers/1", map[string]interface{}{
		"name": "Acme Press", "address": "new",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeObject(t, rr)
	assert.Equal(t, "Acme Press", body["name"])
	assert.Equal(t, "new", body["address"])

	var saved testPublisher
	require.NoError(t, db.First(&saved, 1).Error)
	assert.Equal(t, "Acme Press", saved.Name)
}

func TestPartialUpdateLeavesOtherFields(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testPublisher{Name: "Acme", Address: "old"}).Error)
	r := newTestRouter(t, db, publisherConfig())

	rr := doJSON(t, r, "PATCH", "/test_publishers/1", map[string]interface{}{
		"address": "new",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var saved testPublisher
	require.NoError(t, db.First(&saved, 1).Error)
	assert.Equal(t, "Acme", saved.Name, "fields absent from the payload stay untouched")
	assert.Equal(t, "new", saved.Address)
}

func TestUpdateNotFound(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db, publisherConfig())

	rr := doJSON(t, r, "PUT", "/test_publishers/42", map[string]interface{}{
		"name": "Ghost", "address": "",
	})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteThenGone(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testPublisher{Name: "Acme"}).Error)
	r := newTestRouter(t, db, publisherConfig())

	rr := doJSON(t, r, "DELETE", "/test_publishers/1", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = doJSON(t, r, "GET", "/test_publishers/1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, r, "DELETE", "/test_publishers/1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListPagination(t *testing.T) {
	db := newTestDB(t)
	for i := 1; i <= 5; i++ {
		require.NoError(t, db.Create(&testPublisher{Name: fmt.Sprintf("P%d", i)}).Error)
	}
	r := newTestRouter(t, db, publisherConfig())

	rr := doJSON(t, r, "GET", "/test_publishers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "5", rr.Header().Get("x-total-count"))
	assert.Len(t, decodeList(t, rr), 5)

	rr = doJSON(t, r, "GET", "/test_publishers?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "5", rr.Header().Get("x-total-count"),
		"the total counts the full filtered set, not the page")

	page := decodeList(t, rr)
	require.Len(t, page, 2)
	assert.Equal(t, "P2", page[0]["name"])
	assert.Equal(t, "P3", page[1]["name"])
}

func TestListRequestedLimitOverridesDefault(t *testing.T) {
	db := newTestDB(t)
	for i := 1; i <= 5; i++ {
		require.NoError(t, db.Create(&testPublisher{Name: fmt.Sprintf("P%d", i)}).Error)
	}
	cfg := publisherConfig()
	cfg.DefaultLimit = 2
	cfg.MaxLimit = 4
	r := newTestRouter(t, db, cfg)

	rr := doJSON(t, r, "GET", "/test_publishers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, rr), 2, "the default applies when no limit is given")

	rr = doJSON(t, r, "GET", "/test_publishers?limit=3", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, rr), 3, "a requested limit above the default is honored")

	rr = doJSON(t, r, "GET", "/test_publishers?limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, rr), 4, "the maximum caps the requested limit")
	assert.Equal(t, "5", rr.Header().Get("x-total-count"))
}

func TestListInvalidPagination(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db, publisherConfig())

	for _, query := range []string{"?limit=abc", "?offset=-3", "?limit=-1"} {
		rr := doJSON(t, r, "GET", "/test_publishers"+query, nil)
		require.Equal(t, http.StatusUnprocessableEntity, rr.Code, "query %s", query)
	}
}

func TestCreateBookWithRelations(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testPublisher{Name: "Acme"}).Error)
	require.NoError(t, db.Create(&testAuthor{Name: "First"}).Error)
	require.NoError(t, db.Create(&testAuthor{Name: "Second"}).Error)
	r := newTestRouter(t, db, bookConfig())

	rr := doJSON(t, r, "POST", "/test_books", map[string]interface{}{
		"title":     "Gone",
		"publisher": 1,
		"authors":   []int{1, 2},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = doJSON(t, r, "GET", "/test_books/1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeObject(t, rr)
	pub := body["publisher"].(map[string]interface{})
	assert.Equal(t, "Acme", pub["name"])

	authors := body["authors"].([]interface{})
	require.Len(t, authors, 2)
	names := []string{
		authors[0].(map[string]interface{})["name"].(string),
		authors[1].(map[string]interface{})["name"].(string),
	}
	assert.ElementsMatch(t, []string{"First", "Second"}, names)
}

func TestCreateBookUnknownPublisher(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db, bookConfig())

	rr := doJSON(t, r, "POST", "/test_books", map[string]interface{}{
		"title":     "Orphan",
		"publisher": 999,
	})
	require.Equal(t, http.StatusNotFound, rr.Code)

	var count int64
	require.NoError(t, db.Model(&testBook{}).Count(&count).Error)
	assert.Zero(t, count, "nothing persists when a referenced row is missing")
}

func TestCreateBookUnknownAuthorRollsBack(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testPublisher{Name: "Acme"}).Error)
	require.NoError(t, db.Create(&testAuthor{Name: "First"}).Error)
	r := newTestRouter(t, db, bookConfig())

	rr := doJSON(t, r, "POST", "/test_books", map[string]interface{}{
		"title":     "Half Done",
		"publisher": 1,
		"authors":   []int{1, 999},
	})
	require.Equal(t, http.StatusNotFound, rr.Code)

	var count int64
	require.NoError(t, db.Model(&testBook{}).Count(&count).Error)
	assert.Zero(t, count, "the already-inserted row rolls back with the transaction")
}

func TestUpdateReplacesAuthorSet(t *testing.T) {
	db := newTestDB(t)
	first := testAuthor{Name: "First"}
	second := testAuthor{Name: "Second"}
	require.NoError(t, db.Create(&testPublisher{Name: "Acme"}).Error)
	require.NoError(t, db.Create(&first).Error)
	require.NoError(t, db.Create(&second).Error)
	require.NoError(t, db.Create(&testBook{Title: "Gone", PublisherID: 1, Authors: []testAuthor{first}}).Error)
	r := newTestRouter(t, db, bookConfig())

	rr := doJSON(t, r, "PUT", "/test_books/1", map[string]interface{}{
		"title":     "Gone",
		"publisher": 1,
		"authors":   []int{2},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var saved testBook
	require.NoError(t, db.Preload("Authors").First(&saved, 1).Error)
	require.Len(t, saved.Authors, 1)
	assert.Equal(t, "Second", saved.Authors[0].Name, "the member set is replaced, not appended")
}

func TestUpdateResponseReflectsNewRelations(t *testing.T) {
	db := newTestDB(t)
	author := testAuthor{Name: "First"}
	require.NoError(t, db.Create(&testPublisher{Name: "Acme"}).Error)
	require.NoError(t, db.Create(&testPublisher{Name: "Initech"}).Error)
	require.NoError(t, db.Create(&author).Error)
	require.NoError(t, db.Create(&testBook{Title: "Gone", PublisherID: 1, Authors: []testAuthor{author}}).Error)
	r := newTestRouter(t, db, bookConfig())

	rr := doJSON(t, r, "PUT", "/test_books/1", map[string]interface{}{
		"title":     "Gone",
		"publisher": 2,
		"authors":   []int{1},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeObject(t, rr)
	pub, ok := body["publisher"].(map[string]interface{})
	require.True(t, ok, "the nested publisher is loaded after the foreign key changed: %s", rr.Body.String())
	assert.Equal(t, float64(2), pub["id"])
	assert.Equal(t, "Initech", pub["name"])

	authors := body["authors"].([]interface{})
	require.Len(t, authors, 1)
	assert.Equal(t, "First", authors[0].(map[string]interface{})["name"])
}

func TestUnauthenticatedGets401(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db, publisherConfig(denyAuthPolicy{}))

	rr := doJSON(t, r, "GET", "/test_publishers", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized", decodeObject(t, rr)["code"])
}

func TestForbiddenGets403(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db, publisherConfig(denyPermissionPolicy{}))

	rr := doJSON(t, r, "POST", "/test_publishers", map[string]interface{}{"name": "Acme"})
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Forbidden", decodeObject(t, rr)["code"])
}

func TestObjectDenialReadsAsNotFound(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testPublisher{Name: "Acme"}).Error)
	r := newTestRouter(t, db, publisherConfig(denyObjectPolicy{}))

	rr := doJSON(t, r, "GET", "/test_publishers/1", nil)
	require.Equal(t, http.StatusNotFound, rr.Code,
		"object denial is indistinguishable from a missing row")
}

func TestRelatedObjectDenialReadsAsNotFound(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testPublisher{Name: "Acme"}).Error)
	r := newTestRouter(t, db, bookConfig(denyRelatedPolicy{}))

	rr := doJSON(t, r, "POST", "/test_books", map[string]interface{}{
		"title":     "Gone",
		"publisher": 1,
	})
	require.Equal(t, http.StatusNotFound, rr.Code)

	var count int64
	require.NoError(t, db.Model(&testBook{}).Count(&count).Error)
	assert.Zero(t, count)
}

// visibilityFilters hides rows whose address is not "visible".
type visibilityFilters struct {
	DefaultFilters
}

func (visibilityFilters) BaseFilter(*RequestContext) Restriction {
	return Restriction{Cond: "address = ?", Args: []interface{}{"visible"}}
}

func TestBaseFilterScopesQueries(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testPublisher{Name: "Shown", Address: "visible"}).Error)
	require.NoError(t, db.Create(&testPublisher{Name: "Hidden", Address: "hidden"}).Error)

	cfg := publisherConfig()
	cfg.Filters = visibilityFilters{}
	r := newTestRouter(t, db, cfg)

	rr := doJSON(t, r, "GET", "/test_publishers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("x-total-count"))

	list := decodeList(t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "Shown", list[0]["name"])

	rr = doJSON(t, r, "GET", "/test_publishers/2", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "filtered-out rows do not exist")
}

// recordingHooks notes each callback and whether the object was populated.
type recordingHooks struct {
	NoopHooks
	calls []string
}

func (h *recordingHooks) PreCreate(rc *RequestContext) {
	h.calls = append(h.calls, "pre_create")
}

func (h *recordingHooks) PostCreate(rc *RequestContext) {
	if rc.Object != nil {
		h.calls = append(h.calls, "post_create")
	}
}

func (h *recordingHooks) PreDelete(rc *RequestContext) {
	h.calls = append(h.calls, "pre_delete")
}

func (h *recordingHooks) PostDelete(rc *RequestContext) {
	h.calls = append(h.calls, "post_delete")
}

func TestHooksRunAroundMutations(t *testing.T) {
	db := newTestDB(t)
	hooks := &recordingHooks{}
	cfg := publisherConfig()
	cfg.Hooks = hooks
	r := newTestRouter(t, db, cfg)

	rr := doJSON(t, r, "POST", "/test_publishers", map[string]interface{}{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, r, "DELETE", "/test_publishers/1", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	assert.Equal(t, []string{"pre_create", "post_create", "pre_delete", "post_delete"}, hooks.calls)
}

func TestHooksSkippedWhenDenied(t *testing.T) {
	db := newTestDB(t)
	hooks := &recordingHooks{}
	cfg := publisherConfig(denyPermissionPolicy{})
	cfg.Hooks = hooks
	r := newTestRouter(t, db, cfg)

	rr := doJSON(t, r, "POST", "/test_publishers", map[string]interface{}{"name": "Acme"})
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, hooks.calls)
}

func TestOperationsGeneration(t *testing.T) {
	db := newTestDB(t)

	controller, err := AssembleWithGORM(db, publisherConfig())
	require.NoError(t, err)

	ops := controller.Operations()
	require.Len(t, ops, 6, "create, list, get_one, update, partial_update, delete")

	byAction := map[Action]Operation{}
	for _, op := range ops {
		byAction[op.Action] = op
	}

	assert.Equal(t, "POST", byAction[ActionCreate].Method)
	assert.Equal(t, "/test_publishers", byAction[ActionCreate].Path)
	assert.Equal(t, "GET", byAction[ActionList].Method)
	assert.Equal(t, "/test_publishers/{id}", byAction[ActionGetOne].Path)
	assert.Equal(t, "PUT", byAction[ActionUpdate].Method)
	assert.Equal(t, "PATCH", byAction[ActionPartialUpdate].Method)
	assert.Equal(t, "DELETE", byAction[ActionDelete].Method)
	assert.Equal(t, "testPublisher_create", byAction[ActionCreate].OperationID)
}

func TestOperationsSkippedWithoutSelection(t *testing.T) {
	db := newTestDB(t)

	controller, err := AssembleWithGORM(db, &Config{
		Model:        testPublisher{},
		GetOneFields: AllFields(testPublisher{}),
	})
	require.NoError(t, err)

	ops := controller.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, ActionGetOne, ops[0].Action)
}

func TestAssembleRejectsInvalidConfig(t *testing.T) {
	db := newTestDB(t)

	_, err := AssembleWithGORM(db, &Config{})
	assert.Error(t, err)

	type noPK struct {
		Name string
	}
	_, err = AssembleWithGORM(db, &Config{Model: noPK{}})
	assert.Error(t, err, "models without a detectable primary key are rejected")
}
