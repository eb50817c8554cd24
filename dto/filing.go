package dto

type FiledDocument struct {
	Name       string `json:"name"`
	DocumentID string `json:"documentId"`
	IsBody     bool   `json:"isBody"`
}

type FilingResult struct {
	Documents []FiledDocument `json:"documents"`
}

func (r *FilingResult) DocumentIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.Documents))
	for _, doc := range r.Documents {
		ids = append(ids, doc.DocumentID)
	}
	return ids
}

// IMSDocument is a single document handed to IMS.
type IMSDocument struct {
	Name          string
	Content       []byte
	ContentType   string
	Description   string
	ControlNumber int
	FolderID      string
}
