package ims

import (
	"encoding/xml"
	"strings"
)

const soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

type requestEnvelope struct {
	XMLName xml.Name       `xml:"soap:Envelope"`
	Soap    string         `xml:"xmlns:soap,attr"`
	Header  *requestHeader `xml:"soap:Header,omitempty"`
	Body    requestBody    `xml:"soap:Body"`
}

type requestHeader struct {
	Token *tokenHeader
}

type tokenHeader struct {
	XMLName xml.Name `xml:"TokenHeader"`
	NS      string   `xml:"xmlns,attr"`
	Token   string   `xml:"Token"`
}

type requestBody struct {
	Content interface{}
}

type loginIMSUser struct {
	XMLName  xml.Name `xml:"LoginIMSUser"`
	NS       string   `xml:"xmlns,attr"`
	UserName string   `xml:"userName"`
	Password string   `xml:"tripleDESEncryptedPassword"`
}

type insertAssociatedDocument struct {
	XMLName       xml.Name `xml:"InsertAssociatedDocument"`
	NS            string   `xml:"xmlns,attr"`
	FileData      string   `xml:"fileData"`
	FileName      string   `xml:"fileName"`
	FileExtension string   `xml:"fileExtension"`
	ContentType   string   `xml:"contentType"`
	ControlNumber int      `xml:"controlNumber"`
	FolderID      string   `xml:"folderID,omitempty"`
	Description   string   `xml:"description"`
}

type fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type responseEnvelope struct {
	Body struct {
		Fault                *fault `xml:"Fault"`
		LoginIMSUserResponse *struct {
			Result struct {
				Token  string `xml:"Token"`
				UserID string `xml:"UserID"`
			} `xml:"LoginIMSUserResult"`
		} `xml:"LoginIMSUserResponse"`
		InsertAssociatedDocumentResponse *struct {
			Result string `xml:"InsertAssociatedDocumentResult"`
		} `xml:"InsertAssociatedDocumentResponse"`
	} `xml:"Body"`
}

func newEnvelope(token *tokenHeader, content interface{}) requestEnvelope {
	env := requestEnvelope{
		Soap: soapEnvelopeNS,
		Body: requestBody{Content: content},
	}
	if token != nil {
		env.Header = &requestHeader{Token: token}
	}
	return env
}

func serviceNamespace(base, service string) string {
	return strings.TrimRight(base, "/") + "/" + service
}
