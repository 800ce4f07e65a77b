package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/hottakes/internal/model"
	"github.com/hitoshi/hottakes/internal/ranking"
)

// --- GET /takes テスト ---

func TestTakeHandler_ListTakes_Success(t *testing.T) {
	ranker := &mockRanker{
		listFn: func(ctx context.Context, req ranking.ListRequest) (*ranking.Page, error) {
			if req.Sort != ranking.SortHottest24h {
				t.Errorf("Sort = %q, want %q", req.Sort, ranking.SortHottest24h)
			}
			if req.Limit != 2 {
				t.Errorf("Limit = %d, want 2", req.Limit)
			}
			if req.Cursor != "abc" {
				t.Errorf("Cursor = %q, want %q", req.Cursor, "abc")
			}
			if req.ViewerID != aliceID {
				t.Errorf("ViewerID = %q, want %q", req.ViewerID, aliceID)
			}
			return &ranking.Page{
				Takes: []model.TakeView{
					{Take: model.Take{ID: takeID, Content: "ピザにパイナップルは正義", LikeCount: 3, Username: "brave-lynx-1", CreatedAt: testCreatedAt}, UserLiked: true},
				},
				NextCursor: "next",
				HasMore:    true,
			}, nil
		},
	}
	h := NewTakeHandler(&mockTakeService{}, ranker)

	req := httptest.NewRequest(http.MethodGet, "/takes?sort=hottest_24h&limit=2&cursor=abc", nil)
	req = withUserID(req, aliceID)
	w := httptest.NewRecorder()
	h.ListTakes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	result := decodeBody(t, w)
	takes, ok := result["takes"].([]any)
	if !ok || len(takes) != 1 {
		t.Fatalf("takes = %v, want 1 element", result["takes"])
	}
	first := takes[0].(map[string]any)
	if first["id"] != takeID || first["user_liked"] != true || first["like_count"] != float64(3) {
		t.Errorf("take = %v", first)
	}
	if result["next_cursor"] != "next" {
		t.Errorf("next_cursor = %v, want %q", result["next_cursor"], "next")
	}
	if result["has_more"] != true {
		t.Errorf("has_more = %v, want true", result["has_more"])
	}
}

// 最終ページではnext_cursorがnullになることを検証
func TestTakeHandler_ListTakes_LastPageHasNullCursor(t *testing.T) {
	h := NewTakeHandler(&mockTakeService{}, &mockRanker{})

	w := httptest.NewRecorder()
	h.ListTakes(w, httptest.NewRequest(http.MethodGet, "/takes", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	result := decodeBody(t, w)
	if v, ok := result["next_cursor"]; !ok || v != nil {
		t.Errorf("next_cursor = %v (present=%v), want null", v, ok)
	}
	if takes, ok := result["takes"].([]any); !ok || len(takes) != 0 {
		t.Errorf("takes = %v, want empty array", result["takes"])
	}
}

// パラメータ省略時はnewest・20件で問い合わせることを検証
func TestTakeHandler_ListTakes_Defaults(t *testing.T) {
	var got ranking.ListRequest
	ranker := &mockRanker{
		listFn: func(ctx context.Context, req ranking.ListRequest) (*ranking.Page, error) {
			got = req
			return &ranking.Page{}, nil
		},
	}
	h := NewTakeHandler(&mockTakeService{}, ranker)

	w := httptest.NewRecorder()
	h.ListTakes(w, httptest.NewRequest(http.MethodGet, "/takes", nil))

	if got.Sort != ranking.SortNewest {
		t.Errorf("Sort = %q, want %q", got.Sort, ranking.SortNewest)
	}
	if got.Limit != ranking.DefaultLimit {
		t.Errorf("Limit = %d, want %d", got.Limit, ranking.DefaultLimit)
	}
	if got.ViewerID != "" {
		t.Errorf("ViewerID = %q, want empty for anonymous", got.ViewerID)
	}
}

func TestTakeHandler_ListTakes_InvalidParams(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		rankErr  error
		wantCode string
	}{
		{name: "未知のsort", query: "?sort=oldest", wantCode: model.ErrCodeInvalidSort},
		{name: "数値でないlimit", query: "?limit=abc", wantCode: model.ErrCodeInvalidLimit},
		{name: "範囲外のlimit", query: "?limit=500", rankErr: model.NewInvalidLimitError(500, 1, 100), wantCode: model.ErrCodeInvalidLimit},
		{name: "壊れたcursor", query: "?cursor=bm90LWpzb24", rankErr: model.NewInvalidCursorError("malformed"), wantCode: model.ErrCodeInvalidCursor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranker := &mockRanker{
				listFn: func(ctx context.Context, req ranking.ListRequest) (*ranking.Page, error) {
					if tt.rankErr == nil {
						t.Error("ranker should not be called")
						return &ranking.Page{}, nil
					}
					return nil, tt.rankErr
				},
			}
			h := NewTakeHandler(&mockTakeService{}, ranker)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/takes", nil)
			req.URL.RawQuery = tt.query[1:]
			h.ListTakes(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if code := decodeBody(t, w)["code"]; code != tt.wantCode {
				t.Errorf("code = %v, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestTakeHandler_TopTakes(t *testing.T) {
	ranker := &mockRanker{
		topOfDayFn: func(ctx context.Context, viewerID string) ([]model.TakeView, error) {
			return []model.TakeView{
				{Take: model.Take{ID: "01J8ZK3Q4V5W6X7Y8Z9A0B1C2F", LikeCount: 9, CreatedAt: testCreatedAt}},
				{Take: model.Take{ID: takeID, LikeCount: 4, CreatedAt: testCreatedAt}},
			}, nil
		},
	}
	h := NewTakeHandler(&mockTakeService{}, ranker)

	w := httptest.NewRecorder()
	h.TopTakes(w, httptest.NewRequest(http.MethodGet, "/takes/top", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	takes := decodeBody(t, w)["takes"].([]any)
	if len(takes) != 2 {
		t.Fatalf("len(takes) = %d, want 2", len(takes))
	}
	if takes[0].(map[string]any)["like_count"] != float64(9) {
		t.Errorf("ranker order should be preserved: %v", takes)
	}
}

// --- GET /takes/{id} テスト ---

func TestTakeHandler_GetTake_NotFound(t *testing.T) {
	h := NewTakeHandler(&mockTakeService{}, &mockRanker{})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/takes/"+takeID, nil), "id", takeID)
	w := httptest.NewRecorder()
	h.GetTake(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if code := decodeBody(t, w)["code"]; code != model.ErrCodeTakeNotFound {
		t.Errorf("code = %v, want %q", code, model.ErrCodeTakeNotFound)
	}
}

// --- POST /takes テスト ---

func TestTakeHandler_CreateTake_Success(t *testing.T) {
	svc := &mockTakeService{
		createTakeFn: func(ctx context.Context, userID, content string) (*model.TakeView, error) {
			if userID != aliceID {
				t.Errorf("userID = %q, want %q", userID, aliceID)
			}
			if content != "猫派です" {
				t.Errorf("content = %q, want %q", content, "猫派です")
			}
			return &model.TakeView{Take: model.Take{ID: takeID, Content: content, Username: "brave-lynx-1", CreatedAt: testCreatedAt}}, nil
		},
	}
	h := NewTakeHandler(svc, &mockRanker{})

	req := withUserID(httptest.NewRequest(http.MethodPost, "/takes", jsonBody(`{"content":"猫派です"}`)), aliceID)
	w := httptest.NewRecorder()
	h.CreateTake(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	result := decodeBody(t, w)
	if result["id"] != takeID || result["username"] != "brave-lynx-1" {
		t.Errorf("body = %v", result)
	}
	if result["created_at"] != "2026-03-10T12:00:00Z" {
		t.Errorf("created_at = %v, want RFC3339 UTC", result["created_at"])
	}
}

func TestTakeHandler_CreateTake_BadRequests(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{name: "不正なJSON", body: `{"content":`, wantStatus: http.StatusBadRequest, wantCode: model.ErrCodeInvalidRequest},
		{name: "長すぎる本文", body: `{"content":"x"}`, serviceErr: model.NewInvalidContentError(500), wantStatus: http.StatusBadRequest, wantCode: model.ErrCodeInvalidContent},
		{name: "ユーザーが存在しない", body: `{"content":"x"}`, serviceErr: model.NewUnauthorizedError(), wantStatus: http.StatusUnauthorized, wantCode: model.ErrCodeUnauthorized},
		{name: "想定外のエラー", body: `{"content":"x"}`, serviceErr: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantCode: model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockTakeService{
				createTakeFn: func(ctx context.Context, userID, content string) (*model.TakeView, error) {
					return nil, tt.serviceErr
				},
			}
			h := NewTakeHandler(svc, &mockRanker{})

			req := withUserID(httptest.NewRequest(http.MethodPost, "/takes", jsonBody(tt.body)), aliceID)
			w := httptest.NewRecorder()
			h.CreateTake(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := decodeBody(t, w)["code"]; code != tt.wantCode {
				t.Errorf("code = %v, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestTakeHandler_CreateTake_RequiresSession(t *testing.T) {
	h := NewTakeHandler(&mockTakeService{}, &mockRanker{})

	w := httptest.NewRecorder()
	h.CreateTake(w, httptest.NewRequest(http.MethodPost, "/takes", jsonBody(`{"content":"x"}`)))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- DELETE /takes/{id} テスト ---

func TestTakeHandler_DeleteTake(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "投稿者による削除", wantStatus: http.StatusOK},
		{name: "他人のテイク", err: model.NewForbiddenError(), wantStatus: http.StatusForbidden},
		{name: "存在しないテイク", err: model.NewTakeNotFoundError(takeID), wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockTakeService{
				deleteTakeFn: func(ctx context.Context, userID, id string) error {
					if id != takeID {
						t.Errorf("takeID = %q, want %q", id, takeID)
					}
					return tt.err
				},
			}
			h := NewTakeHandler(svc, &mockRanker{})

			req := httptest.NewRequest(http.MethodDelete, "/takes/"+takeID, nil)
			req = withChiURLParam(withUserID(req, aliceID), "id", takeID)
			w := httptest.NewRecorder()
			h.DeleteTake(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.err == nil {
				if msg := decodeBody(t, w)["message"]; msg != "Take deleted" {
					t.Errorf("message = %v, want %q", msg, "Take deleted")
				}
			}
		})
	}
}

// --- POST|DELETE /takes/{id}/like テスト ---

func TestTakeHandler_LikeUnlike_Messages(t *testing.T) {
	tests := []struct {
		name      string
		like      bool
		changed   bool
		count     int
		wantMsg   string
		wantLiked bool
	}{
		{name: "いいね", like: true, changed: true, count: 4, wantMsg: "Liked", wantLiked: true},
		{name: "いいね済み", like: true, changed: false, count: 4, wantMsg: "Already liked", wantLiked: true},
		{name: "いいね取り消し", like: false, changed: true, count: 3, wantMsg: "Unliked", wantLiked: false},
		{name: "いいねしていない", like: false, changed: false, count: 3, wantMsg: "Not liked", wantLiked: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := func(ctx context.Context, userID, id string) (*model.LikeResult, error) {
				return &model.LikeResult{TakeID: id, LikeCount: tt.count, Changed: tt.changed}, nil
			}
			svc := &mockTakeService{likeFn: result, unlikeFn: result}
			h := NewTakeHandler(svc, &mockRanker{})

			method, handle := http.MethodDelete, h.UnlikeTake
			if tt.like {
				method, handle = http.MethodPost, h.LikeTake
			}
			req := httptest.NewRequest(method, "/takes/"+takeID+"/like", nil)
			req = withChiURLParam(withUserID(req, aliceID), "id", takeID)
			w := httptest.NewRecorder()
			handle(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			body := decodeBody(t, w)
			if body["message"] != tt.wantMsg {
				t.Errorf("message = %v, want %q", body["message"], tt.wantMsg)
			}
			if body["like_count"] != float64(tt.count) {
				t.Errorf("like_count = %v, want %d", body["like_count"], tt.count)
			}
			if body["user_liked"] != tt.wantLiked {
				t.Errorf("user_liked = %v, want %v", body["user_liked"], tt.wantLiked)
			}
		})
	}
}

// --- コメント テスト ---

func TestTakeHandler_ListComments(t *testing.T) {
	svc := &mockTakeService{
		listCommentsFn: func(ctx context.Context, id string) ([]model.Comment, error) {
			return []model.Comment{
				{ID: "c1", TakeID: id, Content: "同意", Username: "quiet-wren-2", CreatedAt: testCreatedAt},
				{ID: "c2", TakeID: id, Content: "反対", Username: "bold-crane-3", CreatedAt: testCreatedAt},
			}, nil
		},
	}
	h := NewTakeHandler(svc, &mockRanker{})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/takes/"+takeID+"/comments", nil), "id", takeID)
	w := httptest.NewRecorder()
	h.ListComments(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	comments := decodeBody(t, w)["comments"].([]any)
	if len(comments) != 2 {
		t.Fatalf("len(comments) = %d, want 2", len(comments))
	}
	if c := comments[0].(map[string]any); c["id"] != "c1" || c["take_id"] != takeID {
		t.Errorf("first comment = %v", c)
	}
}

func TestTakeHandler_CreateComment_HiddenTake(t *testing.T) {
	svc := &mockTakeService{
		createCommentFn: func(ctx context.Context, userID, id, content string) (*model.Comment, error) {
			return nil, model.NewTakeNotFoundError(id)
		},
	}
	h := NewTakeHandler(svc, &mockRanker{})

	req := httptest.NewRequest(http.MethodPost, "/takes/"+takeID+"/comments", jsonBody(`{"content":"hi"}`))
	req = withChiURLParam(withUserID(req, aliceID), "id", takeID)
	w := httptest.NewRecorder()
	h.CreateComment(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestTakeHandler_CreateComment_Success(t *testing.T) {
	h := NewTakeHandler(&mockTakeService{}, &mockRanker{})

	req := httptest.NewRequest(http.MethodPost, "/takes/"+takeID+"/comments", jsonBody(`{"content":"いい指摘"}`))
	req = withChiURLParam(withUserID(req, aliceID), "id", takeID)
	w := httptest.NewRecorder()
	h.CreateComment(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if body := decodeBody(t, w); body["content"] != "いい指摘" || body["take_id"] != takeID {
		t.Errorf("body = %v", body)
	}
}
