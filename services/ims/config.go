package ims

import "time"

type Config struct {
	Namespace string        `env:"IMS_SOAP_NAMESPACE" envDefault:"http://tempuri.org/IMSWebServices"`
	Timeout   time.Duration `env:"EXTERNAL_CALL_TIMEOUT" envDefault:"30s"`
}
