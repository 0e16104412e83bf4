package plannerapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nugget/vibeplanner/internal/idea"
	"github.com/nugget/vibeplanner/internal/strategy"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "", 5*time.Second, nil)
}

func TestListIdeas(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/planner/ideas" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "vibeplanner/") {
			t.Errorf("User-Agent = %q", ua)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("unexpected Authorization %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"id":1,"title":"First","content":"c","status":"todo","cover_type":"gradient","metadata":{"gradient":"g","extra":[1,2]},"created_at":"2025-01-15T10:00:00Z"},
			{"id":2,"title":"Second","content":null}
		]`)
	})

	ideas, err := c.ListIdeas(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(ideas) != 2 {
		t.Fatalf("got %d ideas", len(ideas))
	}
	if ideas[0].Metadata.Gradient() != "g" || ideas[0].Metadata["extra"] == nil {
		t.Errorf("metadata = %v", ideas[0].Metadata)
	}
	if ideas[0].CreatedAt == nil || ideas[0].CreatedAt.Year() != 2025 {
		t.Errorf("created_at = %v", ideas[0].CreatedAt)
	}
	if ideas[1].Status != idea.StatusDraft {
		t.Errorf("missing status = %q, want draft", ideas[1].Status)
	}
}

func TestListIdeas_NullIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `null`)
	})
	ideas, err := c.ListIdeas(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if ideas == nil || len(ideas) != 0 {
		t.Errorf("ideas = %#v, want empty non-nil", ideas)
	}
}

func TestCreateIdea_SendsBodyAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if _, ok := body["id"]; ok {
			t.Error("create body must not carry an id")
		}
		if body["cover_type"] != "gradient" || body["status"] != "todo" {
			t.Errorf("body = %v", body)
		}
		_, _ = io.WriteString(w, `{"id":42,"title":"New","status":"todo","cover_type":"gradient","metadata":{"gradient":"g"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second, nil)
	created, err := c.CreateIdea(t.Context(), idea.Body{
		Title: "New", Status: idea.StatusTodo, CoverType: idea.CoverGradient,
		Metadata: idea.Metadata{"gradient": "g"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != 42 {
		t.Errorf("id = %d", created.ID)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPatch:
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"title":"Edited"}` {
				t.Errorf("patch body = %s", body)
			}
			_, _ = io.WriteString(w, `{"id":7,"title":"Edited"}`)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	title := "Edited"
	updated, err := c.UpdateIdea(t.Context(), 7, idea.Patch{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Edited" {
		t.Errorf("title = %q", updated.Title)
	}
	if err := c.DeleteIdea(t.Context(), 7); err != nil {
		t.Fatal(err)
	}
	want := []string{"PATCH /planner/ideas/7", "DELETE /planner/ideas/7"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantErr    error
		wantDetail string
	}{
		{
			name: "fastapi detail string",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"detail":"Idea not found"}`)
			},
			wantErr:    ErrServerRejected,
			wantDetail: "Idea not found",
		},
		{
			name: "fastapi validation list",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = io.WriteString(w, `{"detail":[{"loc":["body","title"],"msg":"field required"}]}`)
			},
			wantErr:    ErrServerRejected,
			wantDetail: "field required",
		},
		{
			name: "plain text body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, "upstream down\n")
			},
			wantErr:    ErrServerRejected,
			wantDetail: "upstream down",
		},
		{
			name: "malformed success body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"ideas": oops}`)
			},
			wantErr: ErrMalformedResponse,
		},
		{
			name: "truncated success body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `[{"id": 1, "title": "a"`)
			},
			wantErr: ErrMalformedResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.ListIdeas(t.Context())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrServerRejected) {
				t.Errorf("err = %v should also match ErrServerRejected", err)
			}
			if errors.Is(err, ErrNetworkUnavailable) {
				t.Errorf("err = %v must not match ErrNetworkUnavailable", err)
			}
			if tt.wantDetail != "" {
				var rej *RejectedError
				if !errors.As(err, &rej) {
					t.Fatalf("err = %T, want *RejectedError", err)
				}
				if rej.Detail != tt.wantDetail {
					t.Errorf("detail = %q, want %q", rej.Detail, tt.wantDetail)
				}
			}
		})
	}
}

func TestNetworkUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewClient(addr, "", time.Second, nil)
	_, err := c.ListIdeas(t.Context())
	if !errors.Is(err, ErrNetworkUnavailable) {
		t.Fatalf("err = %v, want ErrNetworkUnavailable", err)
	}
	if errors.Is(err, ErrServerRejected) {
		t.Error("network failure must not match ErrServerRejected")
	}
}

func TestStrategyRoundTrip(t *testing.T) {
	var saved []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"goals":"grow","monetization":"{\"product\":\"Course\"}","content_architecture":{"viral":40,"expert":30,"case":20,"warmup":10}}`)
		case http.MethodPost:
			saved, _ = io.ReadAll(r.Body)
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		}
	})

	p, err := c.GetStrategy(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if !p.NeedsMigration() || p.Monetization.Product != "Course" {
		t.Errorf("profile = %+v", p)
	}

	if err := c.SaveStrategy(t.Context(), strategy.Default()); err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(saved, &back); err != nil {
		t.Fatal(err)
	}
	if _, ok := back["monetization"].(map[string]any); !ok {
		t.Errorf("monetization sent as %T, want object", back["monetization"])
	}
}

func TestEnhanceIdea(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req idea.EnhanceRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Focus != idea.FocusViralShorts || req.Title != "Draft" {
			t.Errorf("request = %+v", req)
		}
		_, _ = io.WriteString(w, `{"suggested_title":"Better","hook":"h","value_proposition":"v","script_outline":"s","call_to_action":"c"}`)
	})

	out, err := c.EnhanceIdea(t.Context(), idea.EnhanceRequest{Title: "Draft", Focus: idea.FocusViralShorts})
	if err != nil {
		t.Fatal(err)
	}
	if out.SuggestedTitle != "Better" || out.CallToAction != "c" {
		t.Errorf("enhancement = %+v", out)
	}

	if _, err := c.EnhanceIdea(t.Context(), idea.EnhanceRequest{}); !errors.Is(err, idea.ErrNothingToEnhance) {
		t.Errorf("empty request err = %v", err)
	}
}

func TestTrendIdeasAndGraph(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/trend-ideas":
			_, _ = io.WriteString(w, `{"ideas":[{"title":"AI agents","description":"hot"}]}`)
		case "/api/knowledge/graph":
			if r.URL.Query().Get("limit") != "25" {
				t.Errorf("limit = %q", r.URL.Query().Get("limit"))
			}
			_, _ = io.WriteString(w, `{"nodes":[{"id":"a","name":"talk.vtt","val":1},{"id":"b","name":"talk.vtt","val":1}],"links":[{"source":"a","target":"b"}]}`)
		}
	})

	trends, err := c.TrendIdeas(t.Context(), "AI")
	if err != nil {
		t.Fatal(err)
	}
	if len(trends) != 1 || trends[0].Title != "AI agents" {
		t.Errorf("trends = %+v", trends)
	}

	g, err := c.KnowledgeGraph(t.Context(), 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 2 || len(g.Links) != 1 || g.Links[0].Target != "b" {
		t.Errorf("graph = %+v", g)
	}
}

func TestPing(t *testing.T) {
	status := "healthy"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Health{Status: status, LLMModel: "gpt"})
	})
	h, err := c.Ping(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if h.LLMModel != "gpt" {
		t.Errorf("health = %+v", h)
	}

	status = "degraded"
	if _, err := c.Ping(t.Context()); !errors.Is(err, ErrServerRejected) {
		t.Errorf("degraded err = %v", err)
	}
}

func TestStreamChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Message != "hi" || req.ThreadID != "t1" {
			t.Errorf("request = %+v", req)
		}
		_, _ = io.WriteString(w, "data: {\"type\":\"token\",\"content\":\"yo\"}\n\n")
	})

	body, err := c.StreamChat(t.Context(), ChatRequest{Message: "hi", ThreadID: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()
	raw, _ := io.ReadAll(body)
	if !strings.Contains(string(raw), `"content":"yo"`) {
		t.Errorf("body = %q", raw)
	}
}

func TestStreamChat_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"rag offline"}`, http.StatusServiceUnavailable)
	})
	_, err := c.StreamChat(t.Context(), ChatRequest{Message: "hi"})
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.StatusCode != http.StatusServiceUnavailable || rej.Detail != "rag offline" {
		t.Errorf("err = %v", err)
	}
}
