package cache

import (
	"fmt"
	"strings"
)

func sanitize(s string) string {
	return strings.NewReplacer(" ", "_", ":", "|").Replace(s)
}

// InstanceKey identifies the external job of a test instance.
func InstanceKey(serviceType, serviceURL, resource string) string {
	return fmt.Sprintf("builds:%s:%s:%s:", sanitize(serviceType), sanitize(serviceURL), sanitize(resource))
}

// BuildKey is the key of one adapter operation on an external job.
func BuildKey(serviceType, serviceURL, resource, op string, args ...interface{}) string {
	var b strings.Builder
	b.WriteString(InstanceKey(serviceType, serviceURL, resource))
	b.WriteString(op)
	for _, a := range args {
		b.WriteString("_")
		b.WriteString(sanitize(fmt.Sprint(a)))
	}
	return b.String()
}

func JobKey(id string) string {
	return "job:" + id
}

const HeartbeatKey = "heartbeat"
