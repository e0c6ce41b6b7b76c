package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"deployassist/internal/analysis"
	"deployassist/internal/ghost"
	"deployassist/internal/platform/logger"
	"deployassist/internal/provisioning"
	"deployassist/internal/snapshot"
	"deployassist/pkg/platform/middleware/auth"
	"deployassist/pkg/testutil"
)

var signingKey = []byte("handler-test-key")

type HandlerSuite struct {
	suite.Suite
	source *provisioning.InMemorySource
	ghosts *ghost.InMemoryStore
	router http.Handler
	now    time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.source = provisioning.NewInMemorySource()
	s.ghosts = ghost.NewInMemoryStore()
	s.now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	snapshots := snapshot.NewInMemoryStore()
	log := logger.New()

	capture, err := snapshot.New(snapshots, snapshot.WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)

	analysisSvc, err := analysis.New(s.source, capture, snapshots, s.ghosts,
		analysis.Config{Window: 30 * 24 * time.Hour},
		analysis.WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)

	reviewSvc, err := ghost.NewService(s.ghosts, ghost.WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)

	validator, err := auth.NewHMACValidator(signingKey)
	s.Require().NoError(err)

	s.router = NewRouter(New(analysisSvc, reviewSvc, capture, log), validator)
}

func (s *HandlerSuite) seedExpiredAccount() {
	s.source.Seed(provisioning.RawRecord{Payload: map[string]any{
		"Id":          "R1",
		"Name":        "PS-R1",
		"AccountId":   "acme",
		"AccountName": "Acme",
		"Status":      "Completed",
		"RequestType": "New",
		"CreatedDate": "2023-01-01",
		"LineItems": []any{map[string]any{
			"ProductCode": "APP-1",
			"Category":    "App",
			"StartDate":   "2023-01-01",
			"EndDate":     "2024-01-01",
			"Quantity":    float64(1),
		}},
	}})
}

func (s *HandlerSuite) do(method, path string, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) reviewerToken(email string) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.ReviewerClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(signingKey)
	s.Require().NoError(err)
	return token
}

func (s *HandlerSuite) refresh() {
	rec := s.do(http.MethodPost, "/analysis/refresh", "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *HandlerSuite) TestRefreshAndStatus() {
	s.seedExpiredAccount()

	rec := s.do(http.MethodPost, "/analysis/refresh", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var refresh struct {
		Summary struct {
			RecordsSeen     int `json:"recordsSeen"`
			GhostCandidates int `json:"ghostCandidates"`
		} `json:"summary"`
		Coalesced bool `json:"coalesced"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &refresh))
	s.Equal(1, refresh.Summary.RecordsSeen)
	s.Equal(1, refresh.Summary.GhostCandidates)
	s.False(refresh.Coalesced)

	rec = s.do(http.MethodGet, "/analysis/status", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var status struct {
		Running bool            `json:"running"`
		LastRun json.RawMessage `json:"lastRun"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	s.False(status.Running)
	s.NotEmpty(status.LastRun)
}

func (s *HandlerSuite) TestRefreshFailsWhenSourceDown() {
	s.source.SetUnavailable(true)

	rec := s.do(http.MethodPost, "/analysis/refresh", "")
	s.Equal(http.StatusBadGateway, rec.Code)
	testutil.AssertErrorCode(s.T(), rec, "source_unavailable")
}

func (s *HandlerSuite) TestAccountEntitlements() {
	s.seedExpiredAccount()
	s.refresh()

	rec := s.do(http.MethodGet, "/accounts/acme/entitlements", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp struct {
		AccountID    string `json:"accountId"`
		Entitlements []struct {
			ProductCode string `json:"productCode"`
			State       string `json:"state"`
		} `json:"entitlements"`
		Summary struct {
			Expired int `json:"expired"`
		} `json:"summary"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("acme", resp.AccountID)
	s.Require().Len(resp.Entitlements, 1)
	s.Equal("APP-1", resp.Entitlements[0].ProductCode)
	s.Equal("Expired", resp.Entitlements[0].State)
	s.Equal(1, resp.Summary.Expired)
}

func (s *HandlerSuite) TestAccountEntitlementsUnknownAccount() {
	s.refresh()

	rec := s.do(http.MethodGet, "/accounts/nobody/entitlements", "")
	s.Equal(http.StatusNotFound, rec.Code)
	testutil.AssertErrorCode(s.T(), rec, "not_found")
}

func (s *HandlerSuite) TestGhostList() {
	s.seedExpiredAccount()
	s.refresh()

	rec := s.do(http.MethodGet, "/ghost-accounts?reviewed=false", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	resp := testutil.DecodeResponse[ghostListResponse](s.T(), rec)
	s.Equal(1, resp.Total)
	s.Require().Len(resp.Candidates, 1)
	s.Equal("acme", resp.Candidates[0].AccountID)
	s.Equal(1, resp.Candidates[0].TotalExpiredProducts)
}

func (s *HandlerSuite) TestGhostListRejectsBadQuery() {
	rec := s.do(http.MethodGet, "/ghost-accounts?reviewed=maybe", "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/ghost-accounts?limit=0", "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/ghost-accounts?offset=-1", "")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestReviewRequiresToken() {
	s.seedExpiredAccount()
	s.refresh()

	rec := s.do(http.MethodPost, "/ghost-accounts/acme/review", `{"notes":"known lapse"}`)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestReviewMarksCandidate() {
	s.seedExpiredAccount()
	s.refresh()

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/ghost-accounts/acme/review",
		reviewRequest{Notes: "known lapse"})
	req.Header.Set("Authorization", "Bearer "+s.reviewerToken("ops@example.com"))
	rec := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

	candidate, err := s.ghosts.Get(context.Background(), "acme")
	s.Require().NoError(err)
	s.True(candidate.IsReviewed)
	s.Equal("ops@example.com", candidate.ReviewedBy)
	s.Equal("known lapse", candidate.Notes)
}

func (s *HandlerSuite) TestReviewUnknownCandidate() {
	rec := s.do(http.MethodPost, "/ghost-accounts/nobody/review", `{"notes":"x"}`,
		"Authorization", "Bearer "+s.reviewerToken("ops@example.com"))
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestRemoveGhost() {
	s.seedExpiredAccount()
	s.refresh()

	rec := s.do(http.MethodDelete, "/ghost-accounts/acme", "")
	s.Equal(http.StatusNoContent, rec.Code)

	list := s.do(http.MethodGet, "/ghost-accounts", "")
	var resp ghostListResponse
	s.Require().NoError(json.Unmarshal(list.Body.Bytes(), &resp))
	s.Equal(0, resp.Total)
}

func (s *HandlerSuite) TestRecordHistory() {
	s.seedExpiredAccount()
	s.refresh()

	rec := s.do(http.MethodGet, "/records/R1/history", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp struct {
		RecordID string `json:"recordId"`
		Entries  []struct {
			ChangedFields []string `json:"changedFields"`
		} `json:"entries"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("R1", resp.RecordID)
	s.Require().Len(resp.Entries, 1)
	s.NotEmpty(resp.Entries[0].ChangedFields)
}

func (s *HandlerSuite) TestRecordHistoryUnknownRecord() {
	rec := s.do(http.MethodGet, "/records/nope/history", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())
}
