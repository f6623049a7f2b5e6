package audit

import "time"

// TimelineFilters narrows the audit timeline of one organization.
type TimelineFilters struct {
	OrganizationID string
	ItemID         string
	Action         string
	From           time.Time
	To             time.Time
	Page           int
	PageSize       int
}

// TimelineRow is one audit entry joined with its item.
type TimelineRow struct {
	ID             string    `json:"id"`
	At             time.Time `json:"timestamp"`
	ItemID         string    `json:"itemId"`
	SKU            string    `json:"sku"`
	ItemName       string    `json:"itemName"`
	Action         string    `json:"action"`
	QuantityChange int       `json:"quantityChange"`
}

// PagingInfo holds simple forward/backward paging metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
