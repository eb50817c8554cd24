package enum

type ConfigType string

const (
	ConfigManaged      ConfigType = "managed"
	ConfigClientHosted ConfigType = "client_hosted"
)

func (t ConfigType) String() string {
	return string(t)
}

func (t ConfigType) IsValid() bool {
	return t == ConfigManaged || t == ConfigClientHosted
}

type AddressingMode string

const (
	AddressingLegacy            AddressingMode = "legacy"
	AddressingSubdomain         AddressingMode = "subdomain"
	AddressingPlusAddressCustom AddressingMode = "plus-address-custom"
	AddressingPlusAddressLegacy AddressingMode = "plus-address-legacy"
	AddressingCustomDomain      AddressingMode = "custom-domain"
)

func (t AddressingMode) String() string {
	return string(t)
}

// IsValid reports whether the mode can be stored on a configuration.
// AddressingCustomDomain only appears on routing results.
func (t AddressingMode) IsValid() bool {
	switch t {
	case AddressingLegacy, AddressingSubdomain, AddressingPlusAddressCustom, AddressingPlusAddressLegacy:
		return true
	}
	return false
}

type EmailStatus string

const (
	EmailStatusNotConfigured EmailStatus = "not_configured"
	EmailStatusConfiguring   EmailStatus = "configuring"
	EmailStatusActive        EmailStatus = "active"
	EmailStatusError         EmailStatus = "error"
)

func (t EmailStatus) String() string {
	return string(t)
}

type TestStatus string

const (
	TestStatusUntested TestStatus = "untested"
	TestStatusSuccess  TestStatus = "success"
	TestStatusFailed   TestStatus = "failed"
)

func (t TestStatus) String() string {
	return string(t)
}

type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingFiled      ProcessingStatus = "filed"
	ProcessingSkipped    ProcessingStatus = "skipped"
	ProcessingError      ProcessingStatus = "error"
	ProcessingUnroutable ProcessingStatus = "unroutable"
)

func (t ProcessingStatus) String() string {
	return string(t)
}

// IsTerminal reports whether the pipeline is done with a message in this state.
func (t ProcessingStatus) IsTerminal() bool {
	switch t {
	case ProcessingFiled, ProcessingSkipped, ProcessingError, ProcessingUnroutable:
		return true
	}
	return false
}

type MailboxProvider string

const (
	MailboxProviderGraph MailboxProvider = "graph"
	MailboxProviderIMAP  MailboxProvider = "imap"
)

func (t MailboxProvider) String() string {
	return string(t)
}
