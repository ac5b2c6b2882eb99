/*
Package errors provides semantic error types for the docstore library.

The package defines common error scenarios with specific types that can be
checked using the standard errors.Is() function or the provided helper functions.

Common Errors:

	var (
	    ErrNotFound            = errors.New("not found")
	    ErrCollectionNotFound  = errors.New("collection not found")
	    ErrAlreadyExists       = errors.New("already exists")
	    ErrInvalidInput        = errors.New("invalid input")
	    ErrInvalidFilter       = errors.New("invalid filter")
	    ErrInvalidUpdate       = errors.New("invalid update")
	    ErrInvalidPipeline     = errors.New("invalid pipeline")
	    ErrNoCollectionBinding = errors.New("no collection bound for type")
	)

Usage:

	res, err := db.Aggregate(ctx, "students", pipeline)
	if err != nil {
	    if errors.IsInvalidPipeline(err) {
	        // The pipeline itself is wrong, fix the request
	    }
	    if errors.IsCollectionNotFound(err) {
	        // The collection was never created or has been dropped
	    }
	    return err
	}

A find, update or delete that matches nothing is not an error: it returns an
empty result or a zero count.
*/
package errors
