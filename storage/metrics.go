package storage

import (
	"expvar"
	"fmt"

	"github.com/basaltdb/basalt/objstore"
)

// Metrics holds all expvar counters for one region's storage layer. The
// index-build counters are handed by reference into each instrumented
// scratch-file handle so the metrics dependency is visible in the call
// signature, never ambient.
type Metrics struct {
	// PublishedGlobally indicates the counters are registered in the
	// global expvar namespace.
	PublishedGlobally bool

	// Store carries the per-operation counters of the region store.
	Store *objstore.Metrics

	SSTWriteTotal    *expvar.Int
	SSTDeleteTotal   *expvar.Int
	IndexDeleteTotal *expvar.Int

	UploadTotal        *expvar.Int
	UploadRetriesTotal *expvar.Int
	UploadBytesTotal   *expvar.Int

	IndexIntermediateWriteBytesTotal *expvar.Int
	IndexIntermediateWriteOpTotal    *expvar.Int
	IndexIntermediateFlushOpTotal    *expvar.Int
	IndexIntermediateReadBytesTotal  *expvar.Int
	IndexIntermediateReadOpTotal     *expvar.Int
	IndexIntermediateSeekOpTotal     *expvar.Int
}

// NewMetrics creates a Metrics set. When publishGlobally is true, counters
// register under the given prefix in the expvar namespace; existing
// counters with the same name are reset and reused so repeated provisioning
// of the same region does not panic.
func NewMetrics(publishGlobally bool, prefix string) *Metrics {
	newInt := func(_ string) *expvar.Int { return new(expvar.Int) }
	if publishGlobally {
		newInt = publishExpvarInt
	}

	return &Metrics{
		PublishedGlobally: publishGlobally,
		Store: &objstore.Metrics{
			ReadBytesTotal:  newInt(prefix + "store_read_bytes_total"),
			ReadOpsTotal:    newInt(prefix + "store_read_op_total"),
			WriteBytesTotal: newInt(prefix + "store_write_bytes_total"),
			WriteOpsTotal:   newInt(prefix + "store_write_op_total"),
			FlushOpsTotal:   newInt(prefix + "store_flush_op_total"),
			DeleteOpsTotal:  newInt(prefix + "store_delete_op_total"),
			ListOpsTotal:    newInt(prefix + "store_list_op_total"),
		},
		SSTWriteTotal:    newInt(prefix + "sst_write_total"),
		SSTDeleteTotal:   newInt(prefix + "sst_delete_total"),
		IndexDeleteTotal: newInt(prefix + "index_delete_total"),

		UploadTotal:        newInt(prefix + "upload_total"),
		UploadRetriesTotal: newInt(prefix + "upload_retries_total"),
		UploadBytesTotal:   newInt(prefix + "upload_bytes_total"),

		IndexIntermediateWriteBytesTotal: newInt(prefix + "index_intermediate_write_bytes_total"),
		IndexIntermediateWriteOpTotal:    newInt(prefix + "index_intermediate_write_op_total"),
		IndexIntermediateFlushOpTotal:    newInt(prefix + "index_intermediate_flush_op_total"),
		IndexIntermediateReadBytesTotal:  newInt(prefix + "index_intermediate_read_bytes_total"),
		IndexIntermediateReadOpTotal:     newInt(prefix + "index_intermediate_read_op_total"),
		IndexIntermediateSeekOpTotal:     newInt(prefix + "index_intermediate_seek_op_total"),
	}
}

// publishExpvarInt safely publishes an expvar.Int, reusing and resetting an
// existing variable of the same name.
func publishExpvarInt(name string) *expvar.Int {
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewInt(name)
	}
	if iv, ok := v.(*expvar.Int); ok {
		iv.Set(0)
		return iv
	}
	panic(fmt.Sprintf("expvar: trying to publish Int %s but variable already exists with different type %T", name, v))
}
