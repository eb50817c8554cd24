package graph

import "time"

const fileAttachmentType = "#microsoft.graph.fileAttachment"

const listSelectFields = "id,subject,from,toRecipients,ccRecipients,receivedDateTime,hasAttachments"

type recipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type attachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int    `json:"size"`
	IsInline     bool   `json:"isInline"`
	ContentBytes []byte `json:"contentBytes"`
}

type message struct {
	ID               string       `json:"id"`
	Subject          string       `json:"subject"`
	From             *recipient   `json:"from"`
	ToRecipients     []recipient  `json:"toRecipients"`
	CcRecipients     []recipient  `json:"ccRecipients"`
	ReceivedDateTime time.Time    `json:"receivedDateTime"`
	HasAttachments   bool         `json:"hasAttachments"`
	Body             *itemBody    `json:"body"`
	Attachments      []attachment `json:"attachments"`
}

type messageList struct {
	Value    []message `json:"value"`
	NextLink string    `json:"@odata.nextLink"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
