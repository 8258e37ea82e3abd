package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	testImageModel = "test-image"
	testVideoModel = "test-video"

	imageBytes = "\x89PNG fake image bytes"
	videoBytes = "fake mp4 bytes, long enough to stand in for a video"
)

// fakeVendor imitates the task API: each task reports IN_PROGRESS on the first
// poll and its output from the second poll on.
type fakeVendor struct {
	srv *httptest.Server

	mu          sync.Mutex
	polls       map[string]int
	apiKeys     []string
	videoBodies []map[string]interface{}

	failImageSubmit bool
	neverComplete   bool
}

func newFakeVendor(t *testing.T) *fakeVendor {
	t.Helper()
	v := &fakeVendor{polls: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ai/"+testImageModel, v.handleImageSubmit)
	mux.HandleFunc("/v1/ai/"+testImageModel+"/", v.handlePoll("img-1", "/files/base.png"))
	mux.HandleFunc("/v1/ai/image-to-video/"+testVideoModel, v.handleVideoSubmit)
	mux.HandleFunc("/v1/ai/image-to-video/"+testVideoModel+"/", v.handlePoll("vid-1", "/files/ad.mp4"))
	mux.HandleFunc("/files/base.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(imageBytes))
	})
	mux.HandleFunc("/files/ad.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(videoBytes))
	})

	v.srv = httptest.NewServer(mux)
	t.Cleanup(v.srv.Close)
	return v
}

func (v *fakeVendor) recordKey(r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.apiKeys = append(v.apiKeys, r.Header.Get("x-freepik-api-key"))
}

func (v *fakeVendor) handleImageSubmit(w http.ResponseWriter, r *http.Request) {
	v.recordKey(r)
	if v.failImageSubmit {
		http.Error(w, `{"message":"quota exceeded"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"task_id": "img-1", "status": "CREATED"}})
}

func (v *fakeVendor) handleVideoSubmit(w http.ResponseWriter, r *http.Request) {
	v.recordKey(r)
	var body map[string]interface{}
	json.NewDecoder(r.Body).Decode(&body)

	v.mu.Lock()
	v.videoBodies = append(v.videoBodies, body)
	v.mu.Unlock()

	writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"task_id": "vid-1", "status": "CREATED"}})
}

func (v *fakeVendor) handlePoll(taskID, filePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/"+taskID) {
			http.NotFound(w, r)
			return
		}

		v.mu.Lock()
		v.polls[taskID]++
		n := v.polls[taskID]
		v.mu.Unlock()

		if n < 2 || v.neverComplete {
			writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"status": "IN_PROGRESS", "generated": []string{}}})
			return
		}
		writeJSON(w, map[string]interface{}{"data": map[string]interface{}{
			"status":    "COMPLETED",
			"generated": []string{v.srv.URL + filePath},
		}})
	}
}

func (v *fakeVendor) videoSubmissions() []map[string]interface{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]map[string]interface{}(nil), v.videoBodies...)
}

func (v *fakeVendor) keys() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.apiKeys...)
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
