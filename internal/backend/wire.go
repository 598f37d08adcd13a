package backend

import (
	"encoding/json"

	"github.com/opensource-utility/dipper/internal/domain"
)

// Backend envelope statuses.
const (
	wireSuccess = "success"
	wireError   = "error"
)

// envelope is the uniform response wrapper the billing backend puts
// around every payload.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// anomalyListData is the payload of the anomaly list endpoint.
type anomalyListData struct {
	Anomalies []domain.Anomaly `json:"anomalies"`
}

// detectiveData is the payload of the detective endpoint. The history
// rows keep the backend's cmr_* column names via the domain JSON tags.
type detectiveData struct {
	ReadingHistory []domain.ReadingHistoryEntry `json:"reading_history"`
	Customer       *domain.Customer             `json:"customer,omitempty"`
}

// auditSaveRequest is the body of POST /audit/save.
type auditSaveRequest struct {
	Nomen  string `json:"nomen"`
	Remark string `json:"remark"`
	Status string `json:"status"`
}
