package test_utils

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// MakeRequest sends a JSON request to the handler and asserts the status code.
// A nil body sends no payload.
func MakeRequest(
	t *testing.T,
	router http.Handler,
	method string,
	url string,
	body any,
	expectedStatus int,
) *httptest.ResponseRecorder {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&payload).Encode(body))
	}

	request := httptest.NewRequest(method, url, &payload)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	assert.Equal(t, expectedStatus, recorder.Code, "unexpected status, body: %s", recorder.Body.String())

	return recorder
}

func MakeGetRequestAndUnmarshal(
	t *testing.T,
	router http.Handler,
	url string,
	expectedStatus int,
	response any,
) {
	t.Helper()

	recorder := MakeRequest(t, router, http.MethodGet, url, nil, expectedStatus)
	assert.NoError(t, json.Unmarshal(recorder.Body.Bytes(), response))
}

func MakePostRequestAndUnmarshal(
	t *testing.T,
	router http.Handler,
	url string,
	body any,
	expectedStatus int,
	response any,
) {
	t.Helper()

	recorder := MakeRequest(t, router, http.MethodPost, url, body, expectedStatus)
	assert.NoError(t, json.Unmarshal(recorder.Body.Bytes(), response))
}
