package ingest

import (
	"errors"

	"github.com/twmb/franz-go/pkg/kerr"
)

// metadataErrors are broker errors caused by a stale view of the cluster.
// They go away once the client refreshes its metadata.
var metadataErrors = []error{
	kerr.NotLeaderForPartition,
	kerr.ReplicaNotAvailable,
	kerr.UnknownLeaderEpoch,
	kerr.LeaderNotAvailable,
	kerr.BrokerNotAvailable,
	kerr.UnknownTopicOrPartition,
	kerr.NetworkException,
	kerr.NotCoordinator,
}

// HandleKafkaError reports whether err should trigger a metadata refresh and
// whether the failed operation can be retried.
func HandleKafkaError(err error) (refreshMetadata bool, retriable bool) {
	if err == nil {
		return false, false
	}

	for _, target := range metadataErrors {
		if errors.Is(err, target) {
			return true, true
		}
	}

	return false, false
}
