package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxnRequestShape(t *testing.T) {
	eps := uniqueEndpoints(t, 1)
	transport := newStubTransport(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"header":{"revision":"12"},"succeeded":true}`), nil
	})
	cfg := testConfig(eps)
	cfg.KeyPrefix = "/app/"
	client := newTestClient(t, cfg, transport)

	resp, err := client.Txn().
		If(CmpVersion("lock", CompareEqual, 0)).
		Then(OpPut("lock", "owner-1"), OpGet("state")).
		Else(OpGet("lock")).
		Commit(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Succeeded)
	assert.Equal(t, int64(12), resp.Header.Revision)

	req := transport.lastRequest()
	assert.Equal(t, "/v3/kv/txn", req.URL.Path)

	var wire struct {
		Compare []map[string]any `json:"compare"`
		Success []map[string]any `json:"success"`
		Failure []map[string]any `json:"failure"`
	}
	require.NoError(t, json.Unmarshal([]byte(transport.lastBody()), &wire))

	require.Len(t, wire.Compare, 1)
	assert.Equal(t, "EQUAL", wire.Compare[0]["result"])
	assert.Equal(t, "VERSION", wire.Compare[0]["target"])
	assert.Equal(t, b64("/app/lock"), wire.Compare[0]["key"])

	require.Len(t, wire.Success, 2)
	put := wire.Success[0]["request_put"].(map[string]any)
	assert.Equal(t, b64("/app/lock"), put["key"])
	assert.Equal(t, b64("owner-1"), put["value"])
	get := wire.Success[1]["request_range"].(map[string]any)
	assert.Equal(t, b64("/app/state"), get["key"])

	require.Len(t, wire.Failure, 1)
}

func TestTxnEmptyCompare(t *testing.T) {
	eps := uniqueEndpoints(t, 1)
	transport := newStubTransport(func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	client := newTestClient(t, testConfig(eps), transport)

	_, err := client.Txn().Then(OpPut("k", "v")).Commit(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCompare)
	assert.Zero(t, transport.count())
}

func TestTxnValueCompare(t *testing.T) {
	eps := uniqueEndpoints(t, 1)
	transport := newStubTransport(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"header":{},"succeeded":false}`), nil
	})
	client := newTestClient(t, testConfig(eps), transport)

	_, err := client.Txn().
		If(CmpValue("flag", CompareNotEqual, "on")).
		Then(OpDelete("flag")).
		Commit(context.Background())
	require.NoError(t, err)

	var wire struct {
		Compare []map[string]any `json:"compare"`
	}
	require.NoError(t, json.Unmarshal([]byte(transport.lastBody()), &wire))
	require.Len(t, wire.Compare, 1)
	assert.Equal(t, "NOT_EQUAL", wire.Compare[0]["result"])
	assert.Equal(t, "VALUE", wire.Compare[0]["target"])
	assert.Equal(t, b64("on"), wire.Compare[0]["value"])
}

func TestTxnBranchResponses(t *testing.T) {
	eps := uniqueEndpoints(t, 1)
	body := fmt.Sprintf(
		`{"header":{"revision":"20"},"succeeded":true,"responses":[`+
			`{"response_put":{"header":{"revision":"20"}}},`+
			`{"response_range":{"header":{"revision":"20"},"kvs":[{"key":"%s","value":"%s","mod_revision":"20"}],"count":"1"}},`+
			`{"response_delete_range":{"header":{"revision":"20"},"deleted":"3"}}]}`,
		b64("state"), b64("ready"))
	transport := newStubTransport(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, body), nil
	})
	client := newTestClient(t, testConfig(eps), transport)

	resp, err := client.Txn().
		If(CmpModRevision("state", CompareGreater, 0)).
		Then(OpPut("state", "ready"), OpGet("state"), OpDeletePrefix("tmp/")).
		Commit(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Responses, 3)

	assert.NotNil(t, resp.Responses[0].Put)
	assert.Nil(t, resp.Responses[0].Get)

	require.NotNil(t, resp.Responses[1].Get)
	require.Len(t, resp.Responses[1].Get.KVs, 1)
	assert.Equal(t, "ready", resp.Responses[1].Get.KVs[0].Value)

	require.NotNil(t, resp.Responses[2].Delete)
	assert.Equal(t, int64(3), resp.Responses[2].Delete.Deleted)
}

func TestTxnOpPrefixExpansion(t *testing.T) {
	eps := uniqueEndpoints(t, 1)
	transport := newStubTransport(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"header":{},"succeeded":true}`), nil
	})
	cfg := testConfig(eps)
	cfg.KeyPrefix = "/ns/"
	client := newTestClient(t, cfg, transport)

	_, err := client.Txn().
		If(CmpCreateRevision("guard", CompareGreater, 0)).
		Then(OpGetPrefix("jobs/")).
		Commit(context.Background())
	require.NoError(t, err)

	var wire struct {
		Success []map[string]any `json:"success"`
	}
	require.NoError(t, json.Unmarshal([]byte(transport.lastBody()), &wire))
	get := wire.Success[0]["request_range"].(map[string]any)
	assert.Equal(t, b64("/ns/jobs/"), get["key"])
	assert.Equal(t, b64("/ns/jobs0"), get["range_end"])
}

func TestTxnEmptyKeyInOp(t *testing.T) {
	eps := uniqueEndpoints(t, 1)
	transport := newStubTransport(func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	client := newTestClient(t, testConfig(eps), transport)

	_, err := client.Txn().
		If(CmpVersion("k", CompareEqual, 0)).
		Then(OpPut("", "v")).
		Commit(context.Background())
	assert.ErrorIs(t, err, ErrEmptyKey)
}
