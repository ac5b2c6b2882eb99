/*
Package datastore defines the core interfaces of docstore's storage layer.

Collection is the operation surface every backend provides:

	type Collection interface {
	    InsertMany(ctx context.Context, records []any) (*storagemodels.InsertManyResult, error)
	    DeleteOne(ctx context.Context, filter any) (*storagemodels.DeleteResult, error)
	    UpdateMany(ctx context.Context, filter, update any) (*storagemodels.UpdateResult, error)
	    Find(ctx context.Context, filter any, opts ...storagemodels.FindOption) ([]*document.Document, error)
	    Aggregate(ctx context.Context, pipeline any) (*storagemodels.AggregateResult, error)
	    ...
	}

Source produces records for bulk loading.

Implementations:
  - memory: in-process collections backed by an ordered record sequence
  - jsonfile: Source reading JSON arrays or JSON lines
  - ddb: Source scanning a DynamoDB table
*/
package datastore
