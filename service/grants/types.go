package grants

// StatusGranted is the only status this service ever writes. Revocation is
// handled by a separate moderation flow, not by the payment pipeline.
const StatusGranted = "GRANTED"

// PermissionRecord is the access grant published for a single timeseries of a
// purchased dataset. The authorizer is the dataset owner; the requestor is
// the paying wallet.
type PermissionRecord struct {
	Authorizer   string `json:"authorizer"`
	Requestor    string `json:"requestor"`
	DatasetID    string `json:"datasetID"`
	TimeseriesID string `json:"timeseriesID"`
	Status       string `json:"status"`
}
