/*
Package storagemodels defines the result and option types shared by the
collection façade and the bulk record sources.

Operation results:

	res, _ := coll.UpdateMany(ctx, bson.M{"department": "b"}, bson.M{"$set": bson.M{"firstName": "Ann"}})
	fmt.Println(res.MatchedCount, res.ModifiedCount)

Find options:

	docs, _ := coll.Find(ctx, bson.M{"department": "c"},
	    WithSort(bson.D{{Key: "lastName", Value: 1}}),
	    WithLimit(10),
	)

Source options:

	opts := []StreamOption{
	    WithPageSize(25),
	    WithMaxRetries(3),
	    WithProgressHandler(progressFunc),
	}
*/
package storagemodels
