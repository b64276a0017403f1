package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-counsel-backend/internal/domain"
	"github.com/tbourn/go-counsel-backend/internal/repo"
)

func newCounselFixture(t *testing.T) (*CounselService, *gorm.DB, uint64) {
	t.Helper()
	db := newServiceDB(t)
	u := &domain.User{KakaoID: "kakao-owner", Nickname: "owner"}
	if err := repo.CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return NewCounselService(db), db, u.ID
}

func TestCounselCreate_PendingWithParsedDate(t *testing.T) {
	svc, db, owner := newCounselFixture(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, owner, CounselInput{Date: "2026-08-21", Chat: "hello", Title: " t "})
	if err != nil || id == 0 {
		t.Fatalf("Create: id=%d err=%v", id, err)
	}

	c, err := repo.GetCounsel(ctx, db, id)
	if err != nil {
		t.Fatalf("GetCounsel: %v", err)
	}
	if c.Status != domain.StatusPending || c.Title != "t" || c.Content != "hello" {
		t.Fatalf("unexpected counsel: %+v", c)
	}
	y, m, d := c.CounselDate.Date()
	if y != 2026 || int(m) != 8 || d != 21 {
		t.Fatalf("date not parsed: %v", c.CounselDate)
	}
}

func TestCounselCreate_Validation(t *testing.T) {
	svc, _, owner := newCounselFixture(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, owner, CounselInput{Date: "21-08-2026", Chat: "x"}); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("bad date: got %v, want ErrInvalidDate", err)
	}
	if _, err := svc.Create(ctx, 9999, CounselInput{Date: "2026-08-21", Chat: "x"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown owner: got %v, want ErrUserNotFound", err)
	}
}

func TestCounselRetry_Policy(t *testing.T) {
	svc, _, owner := newCounselFixture(t)
	ctx := context.Background()
	in := CounselInput{Date: "2026-08-21", Chat: "retry chat"}

	id, err := svc.Create(ctx, owner, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// PENDING: a second submission must not restart the run.
	if _, err := svc.Retry(ctx, owner, id, in); !errors.Is(err, ErrAnalysisInProgress) {
		t.Fatalf("retry pending: got %v, want ErrAnalysisInProgress", err)
	}

	// Wrong owner is rejected before any state inspection result leaks.
	if _, err := svc.Retry(ctx, owner+1, id, in); !errors.Is(err, ErrForbidden) {
		t.Fatalf("retry foreign: got %v, want ErrForbidden", err)
	}

	// COMPLETED is final.
	if _, err := svc.Complete(ctx, id, `{"data":{}}`, domain.CategoryService); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := svc.Retry(ctx, owner, id, in); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("retry completed: got %v, want ErrAlreadyCompleted", err)
	}

	// FAILED resets back to PENDING under the same id.
	id2, err := svc.Create(ctx, owner, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Fail(ctx, id2); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, err := svc.Retry(ctx, owner, id2, CounselInput{Date: "2026-08-22", Chat: "new"})
	if err != nil || got != id2 {
		t.Fatalf("retry failed: id=%d err=%v; want %d, nil", got, err, id2)
	}
	c, _ := svc.Get(ctx, owner, id2)
	if c.Status != domain.StatusPending || c.Content != "new" {
		t.Fatalf("retry did not reset: %+v", c)
	}

	// Missing counsel.
	if _, err := svc.Retry(ctx, owner, 424242, in); !errors.Is(err, ErrCounselNotFound) {
		t.Fatalf("retry missing: got %v, want ErrCounselNotFound", err)
	}
}

func TestCounselTerminalTransitions_ExactlyOneEvent(t *testing.T) {
	svc, _, owner := newCounselFixture(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, owner, CounselInput{Date: "2026-08-21", Chat: "x"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ev, err := svc.Complete(ctx, id, `{"data":{"summary":{}}}`, domain.CategoryRoaming)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if ev == nil || ev.UserID != owner || ev.CounselID != id || ev.Status != domain.StatusCompleted {
		t.Fatalf("unexpected event: %+v", ev)
	}

	// Repeat terminal calls are silent no-ops: no error, no event.
	ev, err = svc.Complete(ctx, id, `{"data":{}}`, domain.CategoryRoaming)
	if err != nil || ev != nil {
		t.Fatalf("repeat complete: ev=%+v err=%v; want nil, nil", ev, err)
	}
	ev, err = svc.Fail(ctx, id)
	if err != nil || ev != nil {
		t.Fatalf("fail after complete: ev=%+v err=%v; want nil, nil", ev, err)
	}

	// Unknown id is the same no-op.
	ev, err = svc.Fail(ctx, 999999)
	if err != nil || ev != nil {
		t.Fatalf("fail missing: ev=%+v err=%v; want nil, nil", ev, err)
	}
}

func TestCounselGetAndList_Ownership(t *testing.T) {
	svc, db, owner := newCounselFixture(t)
	ctx := context.Background()

	stranger := &domain.User{KakaoID: "kakao-stranger", Nickname: "s"}
	if err := repo.CreateUser(ctx, db, stranger); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	var last uint64
	for i := 0; i < 4; i++ {
		id, err := svc.Create(ctx, owner, CounselInput{Date: "2026-08-21", Chat: "x"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		last = id
	}

	if _, err := svc.Get(ctx, stranger.ID, last); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign get: got %v, want ErrForbidden", err)
	}
	if _, err := svc.Get(ctx, owner, 999999); !errors.Is(err, ErrCounselNotFound) {
		t.Fatalf("missing get: got %v, want ErrCounselNotFound", err)
	}

	page, err := svc.List(ctx, owner, 0, 3)
	if err != nil || len(page.Items) != 3 || !page.HasNext {
		t.Fatalf("first page: %+v, %v", page, err)
	}
	rest, err := svc.List(ctx, owner, page.NextCursorID, 3)
	if err != nil || len(rest.Items) != 1 {
		t.Fatalf("second page: %+v, %v", rest, err)
	}

	empty, err := svc.List(ctx, stranger.ID, 0, 3)
	if err != nil || len(empty.Items) != 0 || empty.HasNext {
		t.Fatalf("stranger page should be empty: %+v, %v", empty, err)
	}
}

func TestAppendQuestionAnswer(t *testing.T) {
	svc, _, owner := newCounselFixture(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, owner, CounselInput{Date: "2026-08-21", Chat: "x"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// No summary yet.
	if err := svc.AppendQuestionAnswer(ctx, owner, id, "q", "a"); !errors.Is(err, ErrMalformedSummary) {
		t.Fatalf("append without summary: got %v, want ErrMalformedSummary", err)
	}

	envelope := `{"data":{"summary":{"category":"BILLING","content":"요약"}}}`
	if _, err := svc.Complete(ctx, id, envelope, domain.CategoryBilling); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if err := svc.AppendQuestionAnswer(ctx, owner, id, "q1", "a1"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := svc.AppendQuestionAnswer(ctx, owner, id, "q2", "a2"); err != nil {
		t.Fatalf("second append: %v", err)
	}

	c, err := svc.Get(ctx, owner, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var doc struct {
		Data struct {
			Summary struct {
				Category            string `json:"category"`
				AdditionalQuestions []struct {
					Question string `json:"question"`
					Answer   string `json:"answer"`
				} `json:"additional_questions"`
			} `json:"summary"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(*c.SummaryJSON), &doc); err != nil {
		t.Fatalf("unmarshal stored summary: %v", err)
	}
	qs := doc.Data.Summary.AdditionalQuestions
	if len(qs) != 2 || qs[0].Question != "q1" || qs[1].Answer != "a2" {
		t.Fatalf("appended pairs wrong: %+v", qs)
	}
	if doc.Data.Summary.Category != "BILLING" {
		t.Fatalf("append must not disturb existing fields: %+v", doc)
	}

	// Ownership still enforced on the append path.
	if err := svc.AppendQuestionAnswer(ctx, owner+1, id, "q", "a"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign append: got %v, want ErrForbidden", err)
	}
}

func TestAppendQuestionAnswer_FlatEnvelope(t *testing.T) {
	svc, _, owner := newCounselFixture(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, owner, CounselInput{Date: "2026-08-21", Chat: "x"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Envelope without data.summary: pairs land on data itself.
	if _, err := svc.Complete(ctx, id, `{"data":{"category":"SERVICE"}}`, domain.CategoryService); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := svc.AppendQuestionAnswer(ctx, owner, id, "q", "a"); err != nil {
		t.Fatalf("append: %v", err)
	}

	c, _ := svc.Get(ctx, owner, id)
	var doc map[string]any
	if err := json.Unmarshal([]byte(*c.SummaryJSON), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data := doc["data"].(map[string]any)
	list, ok := data["additional_questions"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("expected one pair under data: %+v", data)
	}
}
