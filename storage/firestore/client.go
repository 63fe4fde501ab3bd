// Package firestorerepos implements the repositories on Cloud Firestore, using the
// collections and field names of the original web client.
package firestorerepos

import (
	"context"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/attendify/attendify/core"
)

// Collections
const (
	usersCollection      = "users"
	studentsCollection   = "students"
	attendanceCollection = "attendance"
	closuresCollection   = "attendance_end"
)

// maxWrites is the Firestore limit of writes per transaction or batch.
const maxWrites = 500

// Open connects to the Firestore database of the configured Firebase project.
func Open(ctx context.Context, conf *core.Config) (*firestore.Client, error) {
	var opts []option.ClientOption
	if conf.Firestore.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conf.Firestore.CredentialsFile))
	}

	var fbConf *firebase.Config
	if conf.Firestore.ProjectID != "" {
		fbConf = &firebase.Config{ProjectID: conf.Firestore.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbConf, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase app")
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initializing firestore client")
	}
	return client, nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// collect decodes every document of iter with decode.
func collect(iter *firestore.DocumentIterator, decode func(doc *firestore.DocumentSnapshot) error) error {
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if err := decode(doc); err != nil {
			return errors.Wrapf(err, "decoding %s", doc.Ref.ID)
		}
	}
}

// lessFunc builds a sort function applying orderings in turn; field returns the sort key of item i for a field.
func lessFunc(orderings []core.DBOrdering, field func(i int, name string) string) func(i, j int) bool {
	return func(i, j int) bool {
		for _, ord := range orderings {
			fi, fj := field(i, ord.Field), field(j, ord.Field)
			if fi == fj {
				continue
			}
			if ord.Ascending {
				return fi < fj
			}
			return fi > fj
		}
		return false
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
