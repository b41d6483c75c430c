package pubsub

import "fmt"

// Topic prefixes. Topics follow a hierarchical naming convention:
// {resource}:{id}
const (
	prefixOrgAlerts    = "org:alerts"
	prefixSubjectAlert = "alert:subject"
	prefixHeartbeat    = "heartbeat"
)

// OrgAlertsTopic returns the topic for every alert raised or resolved
// within an organization. Subscribers receive AlertEvent messages.
func OrgAlertsTopic(organizationID string) string {
	return fmt.Sprintf("%s:%s", prefixOrgAlerts, organizationID)
}

// SubjectAlertTopic returns the topic for alert state changes scoped to a
// single subject (a client, machine, or node ID). Subscribers receive
// AlertEvent messages.
func SubjectAlertTopic(subjectID string) string {
	return fmt.Sprintf("%s:%s", prefixSubjectAlert, subjectID)
}

// HeartbeatTopic returns the topic for heartbeat staleness/recovery state
// changes for a single subject. Subscribers receive HeartbeatEvent messages.
func HeartbeatTopic(subjectID string) string {
	return fmt.Sprintf("%s:%s", prefixHeartbeat, subjectID)
}
