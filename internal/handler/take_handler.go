package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hottakes/internal/middleware"
	"github.com/hitoshi/hottakes/internal/model"
	"github.com/hitoshi/hottakes/internal/ranking"
)

// TakeServiceInterface はテイクハンドラーが必要とする書き込み系サービス。take.Serviceが満たす。
type TakeServiceInterface interface {
	CreateTake(ctx context.Context, userID, content string) (*model.TakeView, error)
	DeleteTake(ctx context.Context, userID, takeID string) error
	Like(ctx context.Context, userID, takeID string) (*model.LikeResult, error)
	Unlike(ctx context.Context, userID, takeID string) (*model.LikeResult, error)
	GetTake(ctx context.Context, viewerID, takeID string) (*model.TakeView, error)
	ListComments(ctx context.Context, takeID string) ([]model.Comment, error)
	CreateComment(ctx context.Context, userID, takeID, content string) (*model.Comment, error)
}

// FeedRankerInterface はテイク一覧の並び替えを行う。ranking.Engineが満たす。
type FeedRankerInterface interface {
	List(ctx context.Context, req ranking.ListRequest) (*ranking.Page, error)
	TopOfDay(ctx context.Context, viewerID string) ([]model.TakeView, error)
}

// TakeHandler はテイク・いいね・コメントのHTTPハンドラー。
type TakeHandler struct {
	service TakeServiceInterface
	ranker  FeedRankerInterface
}

// NewTakeHandler はTakeHandlerを生成する。
func NewTakeHandler(service TakeServiceInterface, ranker FeedRankerInterface) *TakeHandler {
	return &TakeHandler{service: service, ranker: ranker}
}

// --- リクエスト・レスポンス型 ---

type contentRequest struct {
	Content string `json:"content"`
}

// takesListResponse はテイク一覧のレスポンス。次ページがない場合next_cursorはnull。
type takesListResponse struct {
	Takes      []model.TakePayload `json:"takes"`
	NextCursor *string             `json:"next_cursor"`
	HasMore    bool                `json:"has_more"`
}

type topTakesResponse struct {
	Takes []model.TakePayload `json:"takes"`
}

type commentsListResponse struct {
	Comments []model.CommentPayload `json:"comments"`
}

type likeResponse struct {
	Message   string `json:"message"`
	ID        string `json:"id"`
	LikeCount int    `json:"like_count"`
	UserLiked bool   `json:"user_liked"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toTakePayloads(views []model.TakeView) []model.TakePayload {
	out := make([]model.TakePayload, len(views))
	for i, v := range views {
		out[i] = model.NewTakePayload(v)
	}
	return out
}

// ListTakes はテイク一覧を返す。
// GET /takes?sort=newest|hottest_24h|hottest_7d&limit=1..100&cursor=xxx
func (h *TakeHandler) ListTakes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sort, err := ranking.ParseSort(q.Get("sort"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	limit := ranking.DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			handleServiceError(w, model.NewInvalidLimitError(0, ranking.MinLimit, ranking.MaxLimit))
			return
		}
	}

	page, err := h.ranker.List(r.Context(), ranking.ListRequest{
		Sort:     sort,
		Limit:    limit,
		Cursor:   q.Get("cursor"),
		ViewerID: middleware.OptionalUserID(r.Context()),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := takesListResponse{Takes: toTakePayloads(page.Takes), HasMore: page.HasMore}
	if page.NextCursor != "" {
		resp.NextCursor = &page.NextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

// TopTakes は直近24時間で反応の多いテイク上位を返す。
// GET /takes/top
func (h *TakeHandler) TopTakes(w http.ResponseWriter, r *http.Request) {
	views, err := h.ranker.TopOfDay(r.Context(), middleware.OptionalUserID(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topTakesResponse{Takes: toTakePayloads(views)})
}

// GetTake はテイク1件を返す。
// GET /takes/{id}
func (h *TakeHandler) GetTake(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetTake(r.Context(), middleware.OptionalUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewTakePayload(*view))
}

// CreateTake はテイクを投稿する。
// POST /takes
func (h *TakeHandler) CreateTake(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.service.CreateTake(r.Context(), userID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.NewTakePayload(*view))
}

// DeleteTake は自分のテイクを削除（非表示化）する。
// DELETE /takes/{id}
func (h *TakeHandler) DeleteTake(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteTake(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Take deleted"})
}

// LikeTake はテイクにいいねする。既にいいね済みでも成功を返す。
// POST /takes/{id}/like
func (h *TakeHandler) LikeTake(w http.ResponseWriter, r *http.Request) {
	h.changeLike(w, r, true)
}

// UnlikeTake はいいねを取り消す。いいねしていなくても成功を返す。
// DELETE /takes/{id}/like
func (h *TakeHandler) UnlikeTake(w http.ResponseWriter, r *http.Request) {
	h.changeLike(w, r, false)
}

func (h *TakeHandler) changeLike(w http.ResponseWriter, r *http.Request, like bool) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	takeID := chi.URLParam(r, "id")

	op, messages := h.service.Unlike, [2]string{"Unliked", "Not liked"}
	if like {
		op, messages = h.service.Like, [2]string{"Liked", "Already liked"}
	}

	res, err := op(r.Context(), userID, takeID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	msg := messages[0]
	if !res.Changed {
		msg = messages[1]
	}
	writeJSON(w, http.StatusOK, likeResponse{
		Message:   msg,
		ID:        res.TakeID,
		LikeCount: res.LikeCount,
		UserLiked: like,
	})
}

// ListComments はテイクのコメント一覧を投稿順に返す。
// GET /takes/{id}/comments
func (h *TakeHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := commentsListResponse{Comments: make([]model.CommentPayload, len(comments))}
	for i, c := range comments {
		resp.Comments[i] = model.NewCommentPayload(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateComment はコメントを投稿する。
// POST /takes/{id}/comments
func (h *TakeHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	comment, err := h.service.CreateComment(r.Context(), userID, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.NewCommentPayload(*comment))
}
