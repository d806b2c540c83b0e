package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zouwei/moraya-speechd/internal/audio"
	"github.com/zouwei/moraya-speechd/internal/session"
	"github.com/zouwei/moraya-speechd/internal/stt"
)

// sessionRequest is the start/connectivity-test body. Either configId names
// a providers-file entry, or the provider fields describe the session
// inline.
type sessionRequest struct {
	ConfigID   string `json:"configId,omitempty"`
	Provider   string `json:"provider,omitempty"`
	BaseURL    string `json:"baseUrl,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`
	Language   string `json:"language,omitempty"`
	Model      string `json:"model,omitempty"`
	Region     string `json:"region,omitempty"`
	Microphone bool   `json:"microphone,omitempty"`
}

func (r *Router) dialConfig(body sessionRequest) (stt.Config, error) {
	if body.ConfigID != "" && r.resolve != nil {
		cfg, err := r.resolve(body.ConfigID)
		if err != nil {
			return stt.Config{}, err
		}
		// Inline fields override the stored entry.
		if body.Language != "" {
			cfg.Language = body.Language
		}
		if body.Model != "" {
			cfg.Model = body.Model
		}
		return cfg, nil
	}
	return stt.Config{
		Provider: body.Provider,
		BaseURL:  body.BaseURL,
		APIKey:   body.APIKey,
		Language: body.Language,
		Model:    body.Model,
		Region:   body.Region,
	}, nil
}

func (r *Router) handleStartSession(w http.ResponseWriter, req *http.Request) {
	var body sessionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := r.dialConfig(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cfg.Provider == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}
	if body.Microphone && !r.cfg.MicrophoneEnabled {
		writeError(w, http.StatusBadRequest, "microphone capture is disabled on this host")
		return
	}

	s, err := r.manager.Start(req.Context(), session.StartOptions{
		ConfigID:   body.ConfigID,
		Config:     cfg,
		Microphone: body.Microphone,
		Capture:    audio.DefaultCaptureOptions(),
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": s.ID,
		"provider":  s.Provider,
		"startedAt": s.StartedAt.UTC(),
	})
}

func (r *Router) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": r.manager.List()})
}

func (r *Router) handlePushAudio(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	s, ok := r.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var body struct {
		Audio string `json:"audio"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Audio == "" {
		writeError(w, http.StatusBadRequest, "audio payload is required")
		return
	}

	if err := s.PushEncoded(body.Audio); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (r *Router) handleStopSession(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	res, err := r.manager.Stop(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res == nil {
		// Unknown or already stopped: stop is idempotent.
		writeJSON(w, http.StatusOK, map[string]any{
			"sessionId":      id,
			"alreadyStopped": true,
		})
		return
	}

	r.applyProposals(req.Context(), res)
	writeJSON(w, http.StatusOK, res)
}

// applyProposals persists the session's new-profile proposals. Failures are
// logged and swallowed: the transcript result still goes out.
func (r *Router) applyProposals(ctx context.Context, res *session.StopResult) {
	if r.profiles == nil || len(res.Proposals) == 0 {
		return
	}
	for _, prop := range res.Proposals {
		if _, err := r.profiles.Apply(ctx, prop); err != nil {
			r.logger.Printf("httpapi: profile proposal for %s failed: %v", prop.SpeakerID, err)
		}
	}
}

func (r *Router) handleConnectivityTest(w http.ResponseWriter, req *http.Request) {
	var body sessionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := r.dialConfig(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cfg.Provider == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), 15*time.Second)
	defer cancel()

	if err := r.manager.TestConnection(ctx, cfg); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
