package entries_core

// EntryQueryOptions filters and pages a listing. Zero values mean "no filter".
type EntryQueryOptions struct {
	BatchID    string `schema:"batch_id"    json:"batchId,omitempty"`
	FamilyHash string `schema:"family_hash" json:"familyHash,omitempty"`
	Tag        string `schema:"tag"         json:"tag,omitempty"`
	// BeforeSequence is the offset cursor taken from the Sequence of the last
	// page's results.
	BeforeSequence int64    `schema:"before" json:"before,omitempty"`
	Limit          int      `schema:"take"   json:"take,omitempty"`
	UUIDs          []string `schema:"uuids"  json:"uuids,omitempty"`
}

const DefaultQueryLimit = 1000

func (o *EntryQueryOptions) EffectiveLimit() int {
	if o == nil || o.Limit <= 0 {
		return DefaultQueryLimit
	}
	return o.Limit
}

func (o *EntryQueryOptions) Offset() int64 {
	if o == nil || o.BeforeSequence < 0 {
		return 0
	}
	return o.BeforeSequence
}

// NextSequence is the cursor a caller passes back to fetch the following page.
func (o *EntryQueryOptions) NextSequence() int64 {
	return o.Offset() + int64(o.EffectiveLimit())
}

func (o *EntryQueryOptions) hasScopeFilter() bool {
	return o != nil && (o.BatchID != "" || o.FamilyHash != "" || o.Tag != "")
}

type WriteItem struct {
	UUID   string `json:"uuid"`
	Index  string `json:"index"`
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

// WriteReport lists the outcome of every document sent in one bulk write.
type WriteReport struct {
	Items []WriteItem `json:"items"`
}

func (r *WriteReport) Written() int {
	if r == nil {
		return 0
	}

	written := 0
	for _, item := range r.Items {
		if item.Error == "" {
			written++
		}
	}
	return written
}
