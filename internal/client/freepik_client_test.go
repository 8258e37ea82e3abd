package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adreel/api/internal/config"
)

const (
	imagePath = "/v1/ai/test-image"
	videoPath = "/v1/ai/image-to-video/test-video"
)

func newTestClient(t *testing.T, handler http.Handler) (*FreepikClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewFreepikClient(&config.FreepikConfig{
		BaseURL:     srv.URL,
		ImageModel:  "test-image",
		VideoModel:  "test-video",
		HTTPTimeout: 5 * time.Second,
	}, zap.NewNop())
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestCreateImageTask_Success(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, imagePath, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-freepik-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "studio shot of wireless earbuds", body["prompt"])
		_, hasRefs := body["reference_images"]
		assert.False(t, hasRefs)

		writeJSON(w, http.StatusOK, `{"data":{"task_id":"t1","status":"CREATED"}}`)
	}))

	taskID, err := c.CreateImageTask(context.Background(), "secret", &ImageTaskRequest{
		Prompt: "studio shot of wireless earbuds",
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", taskID)
}

func TestCreateImageTask_ForwardsReferenceImages(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ReferenceImages []map[string]string `json:"reference_images"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.ReferenceImages, 1)
		assert.Equal(t, "abc", body.ReferenceImages[0]["image"])
		writeJSON(w, http.StatusOK, `{"data":{"task_id":"t2"}}`)
	}))

	taskID, err := c.CreateImageTask(context.Background(), "k", &ImageTaskRequest{
		Prompt:          "p",
		ReferenceImages: []json.RawMessage{json.RawMessage(`{"image":"abc"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, "t2", taskID)
}

func TestCreateImageTask_MissingTaskID(t *testing.T) {
	var polls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&polls, 1)
		}
		writeJSON(w, http.StatusOK, `{"data":{"status":"CREATED"}}`)
	}))

	_, err := c.CreateImageTask(context.Background(), "k", &ImageTaskRequest{Prompt: "p"})

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, TaskKindImage, subErr.Kind)
	assert.Equal(t, http.StatusOK, subErr.StatusCode)
	assert.Contains(t, subErr.Body, "CREATED")
	assert.Zero(t, atomic.LoadInt32(&polls))
}

func TestCreateImageTask_NoData(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"task_id":"t1"}`)
	}))

	_, err := c.CreateImageTask(context.Background(), "k", &ImageTaskRequest{Prompt: "p"})
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
}

func TestCreateImageTask_HTTPError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"invalid api key"}`)
	}))

	_, err := c.CreateImageTask(context.Background(), "bad", &ImageTaskRequest{Prompt: "p"})

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, http.StatusUnauthorized, subErr.StatusCode)
	assert.Contains(t, subErr.Body, "invalid api key")
	assert.Contains(t, err.Error(), "401")
}

func TestCreateImageTask_EmptyPrompt(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	_, err := c.CreateImageTask(context.Background(), "k", &ImageTaskRequest{Prompt: "   "})

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestCreateVideoTask_Body(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, videoPath, r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://cdn/img1.png", body["image_url"])
		assert.Equal(t, "slow zoom", body["prompt"])
		assert.Equal(t, "10", body["duration"])
		writeJSON(w, http.StatusOK, `{"data":{"task_id":"v1"}}`)
	}))

	taskID, err := c.CreateVideoTask(context.Background(), "k", &VideoTaskRequest{
		ImageURL: "https://cdn/img1.png",
		Prompt:   "slow zoom",
		Duration: "10",
	})
	require.NoError(t, err)
	assert.Equal(t, "v1", taskID)
}

func TestPollImageTask_SecondPoll(t *testing.T) {
	var polls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, imagePath+"/t1", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-freepik-api-key"))
		if atomic.AddInt32(&polls, 1) == 1 {
			writeJSON(w, http.StatusOK, `{"data":{"status":"IN_PROGRESS","generated":[]}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{"status":"COMPLETED","generated":["https://cdn/img1.png"]}}`)
	}))

	urls, err := c.PollImageTask(context.Background(), "k", "t1", PollConfig{
		Timeout:  5 * time.Second,
		Interval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/img1.png"}, urls)
	assert.Equal(t, int32(2), atomic.LoadInt32(&polls))
}

func TestPollImageTask_OutputWinsOverStatus(t *testing.T) {
	var polls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&polls, 1)
		writeJSON(w, http.StatusOK, `{"data":{"status":"IN_PROGRESS","generated":["https://cdn/a.png","https://cdn/b.png"]}}`)
	}))

	urls, err := c.PollImageTask(context.Background(), "k", "t1", PollConfig{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/a.png", "https://cdn/b.png"}, urls)
	assert.Equal(t, int32(1), atomic.LoadInt32(&polls))
}

func TestPollImageTask_StatusAloneIsNotTerminal(t *testing.T) {
	var polls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 3 {
			writeJSON(w, http.StatusOK, `{"data":{"status":"COMPLETED","generated":null}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{"status":"COMPLETED","generated":["https://cdn/late.png"]}}`)
	}))

	urls, err := c.PollImageTask(context.Background(), "k", "t1", PollConfig{
		Timeout:  5 * time.Second,
		Interval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/late.png"}, urls)
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))
}

func TestPollImageTask_Timeout(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"status":"IN_PROGRESS","generated":[]}}`)
	}))

	timeout := 150 * time.Millisecond
	interval := 20 * time.Millisecond

	start := time.Now()
	_, err := c.PollImageTask(context.Background(), "k", "t1", PollConfig{Timeout: timeout, Interval: interval})
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "t1", timeoutErr.TaskID)
	assert.Equal(t, "IN_PROGRESS", timeoutErr.LastStatus)
	assert.Contains(t, timeoutErr.LastPayload, `"generated":[]`)

	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+interval+500*time.Millisecond)
}

func TestPollImageTask_HTTPErrorAborts(t *testing.T) {
	var polls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&polls, 1)
		writeJSON(w, http.StatusBadGateway, `upstream down`)
	}))

	_, err := c.PollImageTask(context.Background(), "k", "t1", PollConfig{
		Timeout:  time.Second,
		Interval: 5 * time.Millisecond,
	})

	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Equal(t, http.StatusBadGateway, pollErr.StatusCode)
	assert.Equal(t, "upstream down", pollErr.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&polls))
}

func TestPollImageTask_MalformedPayload(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"status":"DONE","generated":"https://cdn/not-a-list.png"}}`)
	}))

	_, err := c.PollImageTask(context.Background(), "k", "t1", PollConfig{Timeout: time.Second})

	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Contains(t, pollErr.Error(), "unmarshal")
}

func TestPollImageTask_MissingData(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	}))

	_, err := c.PollImageTask(context.Background(), "k", "t1", PollConfig{Timeout: time.Second})

	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
}

func TestPollVideoTask_FirstURL(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, videoPath+"/v1", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"data":{"status":"COMPLETED","generated":["https://cdn/v.mp4","https://cdn/v2.mp4"]}}`)
	}))

	url, err := c.PollVideoTask(context.Background(), "k", "v1", PollConfig{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/v.mp4", url)
}

func TestPollTask_ContextCancelled(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"status":"IN_PROGRESS"}}`)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.PollVideoTask(ctx, "k", "v1", PollConfig{Timeout: time.Minute, Interval: time.Second})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGetTask(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"task_id":"t9","status":"IN_PROGRESS","generated":[]}}`)
	}))

	task, err := c.GetTask(context.Background(), "k", TaskKindImage, "t9")
	require.NoError(t, err)
	assert.Equal(t, "t9", task.TaskID)
	assert.Equal(t, TaskKindImage, task.Kind)
	assert.Equal(t, "IN_PROGRESS", task.Status)
	assert.False(t, task.Done())
}

func TestEndpoints(t *testing.T) {
	cfg := config.FreepikConfig{
		BaseURL:    "https://api.freepik.com/",
		ImageModel: "gemini-2-5-flash-image-preview",
		VideoModel: "kling-v2-5-pro",
	}
	assert.Equal(t, "https://api.freepik.com/v1/ai/gemini-2-5-flash-image-preview", cfg.ImageEndpoint())
	assert.True(t, strings.HasSuffix(cfg.VideoEndpoint(), "/v1/ai/image-to-video/kling-v2-5-pro"))
}
