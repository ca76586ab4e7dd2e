package gateway

// 本文件定义 etcd v3 JSON 网关的线上结构。
// 网关是 grpc-gateway 生成的 protobuf-JSON 映射：int64/uint64 字段
// 以字符串形式编码（`,string` 标签双向兼容），key/value/range_end
// 为 base64 字符串，枚举为大写字符串。

// wireHeader 响应头。
type wireHeader struct {
	ClusterID uint64 `json:"cluster_id,string,omitempty"`
	MemberID  uint64 `json:"member_id,string,omitempty"`
	Revision  int64  `json:"revision,string,omitempty"`
	RaftTerm  uint64 `json:"raft_term,string,omitempty"`
}

// wireKeyValue 线上键值对。
type wireKeyValue struct {
	Key            string `json:"key,omitempty"`
	CreateRevision int64  `json:"create_revision,string,omitempty"`
	ModRevision    int64  `json:"mod_revision,string,omitempty"`
	Version        int64  `json:"version,string,omitempty"`
	Value          string `json:"value,omitempty"`
	Lease          int64  `json:"lease,string,omitempty"`
}

// wireRangeRequest /kv/range 请求体。
type wireRangeRequest struct {
	Key               string `json:"key,omitempty"`
	RangeEnd          string `json:"range_end,omitempty"`
	Limit             int64  `json:"limit,string,omitempty"`
	Revision          int64  `json:"revision,string,omitempty"`
	SortOrder         string `json:"sort_order,omitempty"`
	SortTarget        string `json:"sort_target,omitempty"`
	Serializable      bool   `json:"serializable,omitempty"`
	KeysOnly          bool   `json:"keys_only,omitempty"`
	CountOnly         bool   `json:"count_only,omitempty"`
	MinModRevision    int64  `json:"min_mod_revision,string,omitempty"`
	MaxModRevision    int64  `json:"max_mod_revision,string,omitempty"`
	MinCreateRevision int64  `json:"min_create_revision,string,omitempty"`
	MaxCreateRevision int64  `json:"max_create_revision,string,omitempty"`
}

// wireRangeResponse /kv/range 响应体。
type wireRangeResponse struct {
	Header wireHeader     `json:"header"`
	KVs    []wireKeyValue `json:"kvs"`
	More   bool           `json:"more"`
	Count  int64          `json:"count,string,omitempty"`
}

// wirePutRequest /kv/put 请求体。
type wirePutRequest struct {
	Key         string `json:"key,omitempty"`
	Value       string `json:"value,omitempty"`
	Lease       int64  `json:"lease,string,omitempty"`
	PrevKV      bool   `json:"prev_kv,omitempty"`
	IgnoreValue bool   `json:"ignore_value,omitempty"`
	IgnoreLease bool   `json:"ignore_lease,omitempty"`
}

// wirePutResponse /kv/put 响应体。
type wirePutResponse struct {
	Header wireHeader    `json:"header"`
	PrevKV *wireKeyValue `json:"prev_kv"`
}

// wireDeleteRangeRequest /kv/deleterange 请求体。
type wireDeleteRangeRequest struct {
	Key      string `json:"key,omitempty"`
	RangeEnd string `json:"range_end,omitempty"`
	PrevKV   bool   `json:"prev_kv,omitempty"`
}

// wireDeleteRangeResponse /kv/deleterange 响应体。
type wireDeleteRangeResponse struct {
	Header  wireHeader     `json:"header"`
	Deleted int64          `json:"deleted,string,omitempty"`
	PrevKVs []wireKeyValue `json:"prev_kvs"`
}

// wireCompare 事务比较谓词。
type wireCompare struct {
	Result         string `json:"result,omitempty"`
	Target         string `json:"target,omitempty"`
	Key            string `json:"key,omitempty"`
	Value          string `json:"value,omitempty"`
	CreateRevision int64  `json:"create_revision,string,omitempty"`
	ModRevision    int64  `json:"mod_revision,string,omitempty"`
	Version        int64  `json:"version,string,omitempty"`
	Lease          int64  `json:"lease,string,omitempty"`
}

// wireRequestOp 事务分支操作。
type wireRequestOp struct {
	RequestRange       *wireRangeRequest       `json:"request_range,omitempty"`
	RequestPut         *wirePutRequest         `json:"request_put,omitempty"`
	RequestDeleteRange *wireDeleteRangeRequest `json:"request_delete_range,omitempty"`
}

// wireResponseOp 事务分支响应。
type wireResponseOp struct {
	ResponseRange       *wireRangeResponse       `json:"response_range,omitempty"`
	ResponsePut         *wirePutResponse         `json:"response_put,omitempty"`
	ResponseDeleteRange *wireDeleteRangeResponse `json:"response_delete_range,omitempty"`
}

// wireTxnRequest /kv/txn 请求体。
type wireTxnRequest struct {
	Compare []wireCompare   `json:"compare,omitempty"`
	Success []wireRequestOp `json:"success,omitempty"`
	Failure []wireRequestOp `json:"failure,omitempty"`
}

// wireTxnResponse /kv/txn 响应体。
type wireTxnResponse struct {
	Header    wireHeader       `json:"header"`
	Succeeded bool             `json:"succeeded"`
	Responses []wireResponseOp `json:"responses"`
}

// wireLeaseGrantRequest /lease/grant 请求体。
type wireLeaseGrantRequest struct {
	TTL int64 `json:"TTL,string,omitempty"`
	ID  int64 `json:"ID,string,omitempty"`
}

// wireLeaseGrantResponse /lease/grant 响应体。
type wireLeaseGrantResponse struct {
	Header wireHeader `json:"header"`
	ID     int64      `json:"ID,string,omitempty"`
	TTL    int64      `json:"TTL,string,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// wireLeaseRevokeRequest /kv/lease/revoke 请求体。
type wireLeaseRevokeRequest struct {
	ID int64 `json:"ID,string,omitempty"`
}

// wireLeaseRevokeResponse /kv/lease/revoke 响应体。
type wireLeaseRevokeResponse struct {
	Header wireHeader `json:"header"`
}

// wireLeaseKeepAliveRequest /lease/keepalive 请求体。
type wireLeaseKeepAliveRequest struct {
	ID int64 `json:"ID,string,omitempty"`
}

// wireLeaseKeepAliveResult /lease/keepalive 响应体。
// keepalive 端点是流式的，单次请求返回一条 {"result": {...}} 包裹记录。
type wireLeaseKeepAliveResult struct {
	Result struct {
		Header wireHeader `json:"header"`
		ID     int64      `json:"ID,string,omitempty"`
		TTL    int64      `json:"TTL,string,omitempty"`
	} `json:"result"`
}

// wireLeaseTimeToLiveRequest /kv/lease/timetolive 请求体。
type wireLeaseTimeToLiveRequest struct {
	ID   int64 `json:"ID,string,omitempty"`
	Keys bool  `json:"keys,omitempty"`
}

// wireLeaseTimeToLiveResponse /kv/lease/timetolive 响应体。
type wireLeaseTimeToLiveResponse struct {
	Header     wireHeader `json:"header"`
	ID         int64      `json:"ID,string,omitempty"`
	TTL        int64      `json:"TTL,string,omitempty"`
	GrantedTTL int64      `json:"grantedTTL,string,omitempty"`
	Keys       []string   `json:"keys"`
}

// wireLeaseStatus 单个租约状态。
type wireLeaseStatus struct {
	ID int64 `json:"ID,string,omitempty"`
}

// wireLeasesResponse /lease/leases 响应体。
type wireLeasesResponse struct {
	Header wireHeader        `json:"header"`
	Leases []wireLeaseStatus `json:"leases"`
}

// wireAuthRequest /auth/authenticate 请求体。
type wireAuthRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// wireAuthResponse /auth/authenticate 响应体。
type wireAuthResponse struct {
	Header wireHeader `json:"header"`
	Token  string     `json:"token"`
}

// wireWatchCreateRequest /watch 的 create_request 体。
type wireWatchCreateRequest struct {
	Key            string `json:"key,omitempty"`
	RangeEnd       string `json:"range_end,omitempty"`
	StartRevision  int64  `json:"start_revision,string,omitempty"`
	PrevKV         bool   `json:"prev_kv,omitempty"`
	ProgressNotify bool   `json:"progress_notify,omitempty"`
}

// wireWatchRequest /watch 请求体。
type wireWatchRequest struct {
	CreateRequest wireWatchCreateRequest `json:"create_request"`
}

// wireWatchEvent 流内单个事件。
type wireWatchEvent struct {
	Type   string        `json:"type,omitempty"`
	KV     *wireKeyValue `json:"kv,omitempty"`
	PrevKV *wireKeyValue `json:"prev_kv,omitempty"`
}

// wireWatchResult 流内 result 记录。
type wireWatchResult struct {
	Header          wireHeader       `json:"header"`
	Created         bool             `json:"created"`
	Canceled        bool             `json:"canceled"`
	CompactRevision int64            `json:"compact_revision,string,omitempty"`
	Events          []wireWatchEvent `json:"events"`
}

// wireStreamError 流内错误记录。
type wireStreamError struct {
	GRPCCode   int    `json:"grpc_code"`
	HTTPCode   int    `json:"http_code"`
	Message    string `json:"message"`
	HTTPStatus string `json:"http_status"`
}

// wireWatchRecord 流内一条换行分隔的 JSON 记录。
type wireWatchRecord struct {
	Result *wireWatchResult `json:"result"`
	Error  *wireStreamError `json:"error"`
}
