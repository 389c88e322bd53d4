package core

// Document is a goods-introduction document as accepted by the registry.
// Field names follow the registry's JSON contract, which mixes snake_case
// with a few camelCase keys.
type Document struct {
	Description    *Description `json:"description,omitempty" yaml:"description,omitempty"`
	DocID          string       `json:"doc_id" yaml:"doc_id"`
	DocStatus      string       `json:"doc_status" yaml:"doc_status"`
	DocType        string       `json:"doc_type" yaml:"doc_type"`
	ImportRequest  bool         `json:"importRequest" yaml:"importRequest"`
	OwnerInn       string       `json:"owner_inn" yaml:"owner_inn"`
	ParticipantInn string       `json:"participant_inn" yaml:"participant_inn"`
	ProducerInn    string       `json:"producer_inn" yaml:"producer_inn"`
	ProductionDate string       `json:"production_date" yaml:"production_date"`
	ProductionType string       `json:"production_type" yaml:"production_type"`
	Products       []Product    `json:"products" yaml:"products"`
	RegDate        string       `json:"reg_date" yaml:"reg_date"`
	RegNumber      string       `json:"reg_number" yaml:"reg_number"`
}

// Description holds the participant block of a document.
type Description struct {
	ParticipantInn string `json:"participantInn" yaml:"participantInn"`
}

// Product is a single item introduced into circulation.
type Product struct {
	CertificateDocument       string `json:"certificate_document" yaml:"certificate_document"`
	CertificateDocumentDate   string `json:"certificate_document_date" yaml:"certificate_document_date"`
	CertificateDocumentNumber string `json:"certificate_document_number" yaml:"certificate_document_number"`
	OwnerInn                  string `json:"owner_inn" yaml:"owner_inn"`
	ProducerInn               string `json:"producer_inn" yaml:"producer_inn"`
	ProductionDate            string `json:"production_date" yaml:"production_date"`
	TnvedCode                 string `json:"tnved_code" yaml:"tnved_code"`
	UitCode                   string `json:"uit_code" yaml:"uit_code"`
	UituCode                  string `json:"uitu_code" yaml:"uitu_code"`
}
