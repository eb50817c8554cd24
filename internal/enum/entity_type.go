package enum

type EntityType string

const (
	PROCESSING_LOG EntityType = "PROCESSING_LOG"
)

func (entityType EntityType) String() string {
	return string(entityType)
}
