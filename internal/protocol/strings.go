package protocol

import "fmt"

func (i AuthTransformId) String() string {
	switch i {
	case AUTH_NONE:
		return "AUTH_NONE"
	case AUTH_HMAC_MD5_96:
		return "AUTH_HMAC_MD5_96"
	case AUTH_HMAC_SHA1_96:
		return "AUTH_HMAC_SHA1_96"
	case AUTH_AES_XCBC_96:
		return "AUTH_AES_XCBC_96"
	case AUTH_HMAC_SHA2_256_128:
		return "AUTH_HMAC_SHA2_256_128"
	case AUTH_HMAC_SHA2_384_192:
		return "AUTH_HMAC_SHA2_384_192"
	case AUTH_HMAC_SHA2_512_256:
		return "AUTH_HMAC_SHA2_512_256"
	default:
		return fmt.Sprintf("AuthTransformId(%d)", uint16(i))
	}
}

func (i DhTransformId) String() string {
	switch i {
	case MODP_NONE:
		return "MODP_NONE"
	case MODP_768:
		return "MODP_768"
	case MODP_1024:
		return "MODP_1024"
	case MODP_1536:
		return "MODP_1536"
	case MODP_2048:
		return "MODP_2048"
	case MODP_3072:
		return "MODP_3072"
	case MODP_4096:
		return "MODP_4096"
	case MODP_6144:
		return "MODP_6144"
	case MODP_8192:
		return "MODP_8192"
	case ECP_256:
		return "ECP_256"
	case ECP_384:
		return "ECP_384"
	case ECP_521:
		return "ECP_521"
	default:
		return fmt.Sprintf("DhTransformId(%d)", uint16(i))
	}
}

func (i EncrTransformId) String() string {
	switch i {
	case ENCR_3DES:
		return "ENCR_3DES"
	case ENCR_NULL:
		return "ENCR_NULL"
	case ENCR_AES_CBC:
		return "ENCR_AES_CBC"
	case ENCR_AES_CTR:
		return "ENCR_AES_CTR"
	case AEAD_AES_GCM_8:
		return "AEAD_AES_GCM_8"
	case AEAD_AES_GCM_12:
		return "AEAD_AES_GCM_12"
	case AEAD_AES_GCM_16:
		return "AEAD_AES_GCM_16"
	case ENCR_CAMELLIA_CBC:
		return "ENCR_CAMELLIA_CBC"
	case ENCR_CAMELLIA_CTR:
		return "ENCR_CAMELLIA_CTR"
	default:
		return fmt.Sprintf("EncrTransformId(%d)", uint16(i))
	}
}

func (i IdType) String() string {
	switch i {
	case ID_IPV4_ADDR:
		return "ID_IPV4_ADDR"
	case ID_FQDN:
		return "ID_FQDN"
	case ID_RFC822_ADDR:
		return "ID_RFC822_ADDR"
	case ID_IPV6_ADDR:
		return "ID_IPV6_ADDR"
	case ID_DER_ASN1_DN:
		return "ID_DER_ASN1_DN"
	case ID_DER_ASN1_GN:
		return "ID_DER_ASN1_GN"
	case ID_KEY_ID:
		return "ID_KEY_ID"
	default:
		return fmt.Sprintf("IdType(%d)", uint8(i))
	}
}

func (i IkeExchangeType) String() string {
	switch i {
	case IKE_SA_INIT:
		return "IKE_SA_INIT"
	case IKE_AUTH:
		return "IKE_AUTH"
	case CREATE_CHILD_SA:
		return "CREATE_CHILD_SA"
	case INFORMATIONAL:
		return "INFORMATIONAL"
	case IKE_SESSION_RESUME:
		return "IKE_SESSION_RESUME"
	case GSA_AUTH:
		return "GSA_AUTH"
	case GSA_REGISTRATION:
		return "GSA_REGISTRATION"
	case GSA_REKEY:
		return "GSA_REKEY"
	default:
		return fmt.Sprintf("IkeExchangeType(%d)", uint16(i))
	}
}

func (i NotificationType) String() string {
	switch i {
	case UNSUPPORTED_CRITICAL_PAYLOAD:
		return "UNSUPPORTED_CRITICAL_PAYLOAD"
	case INVALID_SYNTAX:
		return "INVALID_SYNTAX"
	case NO_PROPOSAL_CHOSEN:
		return "NO_PROPOSAL_CHOSEN"
	case AUTHENTICATION_FAILED:
		return "AUTHENTICATION_FAILED"
	case TS_UNACCEPTABLE:
		return "TS_UNACCEPTABLE"
	case INITIAL_CONTACT:
		return "INITIAL_CONTACT"
	case SET_WINDOW_SIZE:
		return "SET_WINDOW_SIZE"
	case NAT_DETECTION_SOURCE_IP:
		return "NAT_DETECTION_SOURCE_IP"
	case NAT_DETECTION_DESTINATION_IP:
		return "NAT_DETECTION_DESTINATION_IP"
	case COOKIE:
		return "COOKIE"
	case USE_TRANSPORT_MODE:
		return "USE_TRANSPORT_MODE"
	case REKEY_SA:
		return "REKEY_SA"
	default:
		return fmt.Sprintf("NotificationType(%d)", uint16(i))
	}
}

func (i PrfTransformId) String() string {
	switch i {
	case PRF_HMAC_SHA1:
		return "PRF_HMAC_SHA1"
	case PRF_HMAC_SHA2_256:
		return "PRF_HMAC_SHA2_256"
	case PRF_HMAC_SHA2_384:
		return "PRF_HMAC_SHA2_384"
	case PRF_HMAC_SHA2_512:
		return "PRF_HMAC_SHA2_512"
	case PRF_AES128_XCBC:
		return "PRF_AES128_XCBC"
	default:
		return fmt.Sprintf("PrfTransformId(%d)", uint16(i))
	}
}

func (i AuthMethod) String() string {
	switch i {
	case RSA_DIGITAL_SIGNATURE:
		return "RSA_DIGITAL_SIGNATURE"
	case SHARED_KEY_MESSAGE_INTEGRITY_CODE:
		return "SHARED_KEY_MESSAGE_INTEGRITY_CODE"
	case DSS_DIGITAL_SIGNATURE:
		return "DSS_DIGITAL_SIGNATURE"
	default:
		return fmt.Sprintf("AuthMethod(%d)", uint8(i))
	}
}

func (p ProtocolId) String() string {
	switch p {
	case IKE:
		return "IKE"
	case AH:
		return "AH"
	case ESP:
		return "ESP"
	default:
		return fmt.Sprintf("ProtocolId(%d)", uint8(p))
	}
}

func (p PayloadType) String() string {
	switch p {
	case PayloadTypeSA:
		return "SA"
	case PayloadTypeKE:
		return "KE"
	case PayloadTypeIDi:
		return "IDi"
	case PayloadTypeIDr:
		return "IDr"
	case PayloadTypeCERT:
		return "CERT"
	case PayloadTypeCERTREQ:
		return "CERTREQ"
	case PayloadTypeAUTH:
		return "AUTH"
	case PayloadTypeNonce:
		return "Ni/Nr"
	case PayloadTypeN:
		return "N"
	case PayloadTypeD:
		return "D"
	case PayloadTypeV:
		return "V"
	case PayloadTypeTSi:
		return "TSi"
	case PayloadTypeTSr:
		return "TSr"
	case PayloadTypeSK:
		return "SK"
	case PayloadTypeCP:
		return "CP"
	case PayloadTypeEAP:
		return "EAP"
	case PayloadTypeSKF:
		return "SKF"
	case PayloadTypeNone:
		return "none"
	default:
		return fmt.Sprintf("PayloadType(%d)", uint8(p))
	}
}
