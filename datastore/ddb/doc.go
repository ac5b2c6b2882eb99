/*
Package ddb provides a DynamoDB table Scan as a bulk record source.

The Source supports:
  - Paginated Scan with a configurable page size
  - Linear backoff retry on throttling and transient server errors
  - Progress reporting after every page
  - Mapping an item attribute to the record _id

Items are decoded with attributevalue, so numbers become float64 and lists and
maps become arrays and nested documents. Attributes are read in sorted order,
with _id first.

Loading a table into a collection:

	client, err := ddb.NewDynamoDBClient(ctx, ddb.ClientConfig{Region: "us-east-1"})
	src := ddb.NewSource(client, "students",
	    ddb.WithIDAttribute("id"),
	    ddb.WithStreamOptions(
	        storagemodels.WithPageSize(25),
	        storagemodels.WithMaxRetries(3),
	        storagemodels.WithProgressHandler(func(p storagemodels.StreamProgress) {
	            logger.Info("scanned", "items", p.ItemsRead)
	        }),
	    ),
	)
	docs, err := src.Documents(ctx)
*/
package ddb
