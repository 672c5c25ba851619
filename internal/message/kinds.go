package message

// Kind tags one protocol message variant. The set is closed: new message
// kinds are added here and in the factory's requirements table, never by
// open-ended extension.
type Kind string

const (
	KindDescriptionRequest    Kind = "dexc:DescriptionRequest"
	KindDescriptionResponse   Kind = "dexc:DescriptionResponse"
	KindContractRequest       Kind = "dexc:ContractRequest"
	KindContractAgreement     Kind = "dexc:ContractAgreement"
	KindArtifactRequest       Kind = "dexc:ArtifactRequest"
	KindArtifactResponse      Kind = "dexc:ArtifactResponse"
	KindResourceUpdate        Kind = "dexc:ResourceUpdate"
	KindResourceUnavailable   Kind = "dexc:ResourceUnavailable"
	KindConnectorUpdate       Kind = "dexc:ConnectorUpdate"
	KindConnectorUnavailable  Kind = "dexc:ConnectorUnavailable"
	KindProcessedNotification Kind = "dexc:MessageProcessedNotification"
	KindRejection             Kind = "dexc:RejectionMessage"
)

// Known reports whether k is a member of the closed kind set.
func (k Kind) Known() bool {
	switch k {
	case KindDescriptionRequest, KindDescriptionResponse,
		KindContractRequest, KindContractAgreement,
		KindArtifactRequest, KindArtifactResponse,
		KindResourceUpdate, KindResourceUnavailable,
		KindConnectorUpdate, KindConnectorUnavailable,
		KindProcessedNotification, KindRejection:
		return true
	}
	return false
}

// RejectionReason is the structured reason carried by a rejection message.
type RejectionReason string

const (
	ReasonNotAuthenticated        RejectionReason = "NOT_AUTHENTICATED"
	ReasonNotAuthorized           RejectionReason = "NOT_AUTHORIZED"
	ReasonBadParameters           RejectionReason = "BAD_PARAMETERS"
	ReasonNotFound                RejectionReason = "NOT_FOUND"
	ReasonVersionNotSupported     RejectionReason = "VERSION_NOT_SUPPORTED"
	ReasonMalformedMessage        RejectionReason = "MALFORMED_MESSAGE"
	ReasonInternalRecipientError  RejectionReason = "INTERNAL_RECIPIENT_ERROR"
	ReasonTemporarilyNotAvailable RejectionReason = "TEMPORARILY_NOT_AVAILABLE"
	ReasonTypeNotSupported        RejectionReason = "MESSAGE_TYPE_NOT_SUPPORTED"
)
