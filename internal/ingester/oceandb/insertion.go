// Package oceandb loads mapped rows into Postgres. Each table is upserted
// in batches through a temporary table and the copy protocol; if a batch
// fails, the rows are retried one by one so a single bad row cannot sink a
// whole file. Upserts only touch rows whose content actually changed, which
// keeps reruns over unmodified files free of writes.
package oceandb

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Abhishekshelar208/oceanquery/internal/common/database"
	"github.com/Abhishekshelar208/oceanquery/internal/common/oceanerrors"
	"github.com/Abhishekshelar208/oceanquery/internal/common/util"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/metrics"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/model"
)

type OceanDb struct {
	db          *pgxpool.Pool
	metrics     *metrics.Metrics
	maxAttempts int
	maxBackoff  int
}

func NewOceanDb(db *pgxpool.Pool, m *metrics.Metrics, maxAttempts, maxBackoff int) *OceanDb {
	return &OceanDb{db: db, metrics: m, maxAttempts: maxAttempts, maxBackoff: maxBackoff}
}

// Store upserts one file's rows. Floats go first, then profiles, then
// measurements, so foreign keys are always satisfied. The returned result
// carries exact inserted, updated and unchanged counts per table.
func (d *OceanDb) Store(ctx context.Context, rows *model.RowSet, batchSize int) (*model.StoreResult, error) {
	result := &model.StoreResult{}
	var errs *multierror.Error

	start := time.Now()
	for _, batch := range chunk(rows.Floats, batchSize) {
		r, err := d.storeFloats(ctx, batch)
		result.Floats.Add(r)
		errs = multierror.Append(errs, err)
	}
	d.recordTable("ocean_float", result.Floats, time.Since(start))

	start = time.Now()
	for _, batch := range chunk(rows.Profiles, batchSize) {
		r, err := d.storeProfiles(ctx, batch)
		result.Profiles.Add(r)
		errs = multierror.Append(errs, err)
	}
	d.recordTable("profile", result.Profiles, time.Since(start))

	start = time.Now()
	for _, batch := range chunk(rows.Measurements, batchSize) {
		r, err := d.storeMeasurements(ctx, batch)
		result.Measurements.Add(r)
		errs = multierror.Append(errs, err)
	}
	d.recordTable("measurement", result.Measurements, time.Since(start))

	return result, errs.ErrorOrNil()
}

// Optimize refreshes planner statistics and reclaims dead tuples after a
// large load. Vacuum failures are logged rather than returned; analyze is
// the part queries depend on.
func (d *OceanDb) Optimize(ctx context.Context) error {
	tables := []string{"ocean_float", "profile", "measurement", "ingestion_record"}
	for _, table := range tables {
		if _, err := d.db.Exec(ctx, "ANALYZE "+table); err != nil {
			return errors.Wrapf(err, "analyzing %s", table)
		}
	}
	for _, table := range tables {
		if _, err := d.db.Exec(ctx, "VACUUM (ANALYZE) "+table); err != nil {
			log.Warnf("Vacuum of %s failed: %v", table, err)
		}
	}
	return nil
}

func (d *OceanDb) recordTable(table string, r model.TableResult, elapsed time.Duration) {
	if r.Inserted > 0 {
		d.metrics.RecordRowsChange(table, metrics.DBOperationInsert, int(r.Inserted))
	}
	if r.Updated > 0 {
		d.metrics.RecordRowsChange(table, metrics.DBOperationUpdate, int(r.Updated))
	}
	if n := r.Inserted + r.Updated; n > 0 {
		d.metrics.RecordRowChangeTime(table, int(n), elapsed)
	}
}

func (d *OceanDb) storeFloats(ctx context.Context, batch []model.FloatRow) (model.TableResult, error) {
	result, err := d.storeFloatsBatch(ctx, batch)
	if err == nil {
		return result, nil
	}
	log.Warnf("Upserting floats via batch failed, will attempt to upsert serially (this might be slow). Error was %+v", err)
	return d.storeFloatsScalar(ctx, batch)
}

func (d *OceanDb) storeProfiles(ctx context.Context, batch []model.ProfileRow) (model.TableResult, error) {
	result, err := d.storeProfilesBatch(ctx, batch)
	if err == nil {
		return result, nil
	}
	log.Warnf("Upserting profiles via batch failed, will attempt to upsert serially (this might be slow). Error was %+v", err)
	return d.storeProfilesScalar(ctx, batch)
}

func (d *OceanDb) storeMeasurements(ctx context.Context, batch []model.MeasurementRow) (model.TableResult, error) {
	result, err := d.storeMeasurementsBatch(ctx, batch)
	if err == nil {
		return result, nil
	}
	log.Warnf("Upserting measurements via batch failed, will attempt to upsert serially (this might be slow). Error was %+v", err)
	return d.storeMeasurementsScalar(ctx, batch)
}

const floatColumns = `float_id, platform_number, project_name, pi_name, institution, status,
	deployment_date, last_contact_date, last_latitude, last_longitude, first_profile_date, last_profile_date`

// The float row is an aggregate over all of a float's profiles, so the
// update merges rather than overwrites: dates only ever widen, and the last
// position follows the latest profile. The WHERE clause compares against
// the merged values so a rerun that changes nothing touches no rows.
const floatUpsert = `
	ON CONFLICT (float_id) DO UPDATE SET
		platform_number    = excluded.platform_number,
		project_name       = CASE WHEN excluded.project_name <> '' THEN excluded.project_name ELSE f.project_name END,
		pi_name            = CASE WHEN excluded.pi_name <> '' THEN excluded.pi_name ELSE f.pi_name END,
		deployment_date    = LEAST(f.deployment_date, excluded.deployment_date),
		first_profile_date = LEAST(f.first_profile_date, excluded.first_profile_date),
		last_profile_date  = GREATEST(f.last_profile_date, excluded.last_profile_date),
		last_contact_date  = GREATEST(f.last_contact_date, excluded.last_contact_date),
		last_latitude      = CASE WHEN excluded.last_profile_date >= f.last_profile_date THEN excluded.last_latitude ELSE f.last_latitude END,
		last_longitude     = CASE WHEN excluded.last_profile_date >= f.last_profile_date THEN excluded.last_longitude ELSE f.last_longitude END
	WHERE (f.platform_number, f.project_name, f.pi_name, f.deployment_date, f.first_profile_date,
	       f.last_profile_date, f.last_contact_date, f.last_latitude, f.last_longitude)
	IS DISTINCT FROM
	      (excluded.platform_number,
	       CASE WHEN excluded.project_name <> '' THEN excluded.project_name ELSE f.project_name END,
	       CASE WHEN excluded.pi_name <> '' THEN excluded.pi_name ELSE f.pi_name END,
	       LEAST(f.deployment_date, excluded.deployment_date),
	       LEAST(f.first_profile_date, excluded.first_profile_date),
	       GREATEST(f.last_profile_date, excluded.last_profile_date),
	       GREATEST(f.last_contact_date, excluded.last_contact_date),
	       CASE WHEN excluded.last_profile_date >= f.last_profile_date THEN excluded.last_latitude ELSE f.last_latitude END,
	       CASE WHEN excluded.last_profile_date >= f.last_profile_date THEN excluded.last_longitude ELSE f.last_longitude END)
	RETURNING (xmax = 0)`

func floatArgs(r model.FloatRow) []interface{} {
	return []interface{}{
		r.FloatID, r.PlatformNumber, r.ProjectName, r.PIName, r.Institution, r.Status,
		r.DeploymentDate, r.LastContactDate, r.LastLatitude, r.LastLongitude,
		r.FirstProfileDate, r.LastProfileDate,
	}
}

func (d *OceanDb) storeFloatsBatch(ctx context.Context, batch []model.FloatRow) (model.TableResult, error) {
	var result model.TableResult
	err := d.withDatabaseRetry(ctx, func() error {
		result = model.TableResult{}
		tmpTable := database.UniqueTableName("ocean_float")

		createTmp := func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, fmt.Sprintf(`
				CREATE TEMPORARY TABLE %s
				(
					float_id           varchar(32),
					platform_number    varchar(32),
					project_name       varchar(256),
					pi_name            varchar(256),
					institution        varchar(256),
					status             varchar(16),
					deployment_date    timestamptz,
					last_contact_date  timestamptz,
					last_latitude      double precision,
					last_longitude     double precision,
					first_profile_date timestamptz,
					last_profile_date  timestamptz
				) ON COMMIT DROP;`, tmpTable))
			if err != nil {
				d.metrics.RecordDBError(metrics.DBOperationCreateTempTable)
			}
			return err
		}

		insertTmp := func(tx pgx.Tx) error {
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{tmpTable},
				[]string{
					"float_id", "platform_number", "project_name", "pi_name", "institution", "status",
					"deployment_date", "last_contact_date", "last_latitude", "last_longitude",
					"first_profile_date", "last_profile_date",
				},
				pgx.CopyFromSlice(len(batch), func(i int) ([]interface{}, error) {
					return floatArgs(batch[i]), nil
				}),
			)
			return err
		}

		copyToDest := func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, fmt.Sprintf(
				`INSERT INTO ocean_float AS f (%[1]s) SELECT %[1]s FROM %[2]s %[3]s`,
				floatColumns, tmpTable, floatUpsert))
			if err != nil {
				d.metrics.RecordDBError(metrics.DBOperationInsert)
				return err
			}
			result, err = countUpserts(rows, len(batch))
			return err
		}

		return batchUpsert(ctx, d.db, createTmp, insertTmp, copyToDest)
	})
	return result, err
}

func (d *OceanDb) storeFloatsScalar(ctx context.Context, batch []model.FloatRow) (model.TableResult, error) {
	sql := fmt.Sprintf(
		`INSERT INTO ocean_float AS f (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) %s`,
		floatColumns, floatUpsert)
	var result model.TableResult
	var errs *multierror.Error
	for _, r := range batch {
		one, err := d.upsertScalar(ctx, sql, floatArgs(r))
		if err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "upserting float %s", r.FloatID))
			continue
		}
		result.Add(one)
	}
	return result, errs.ErrorOrNil()
}

const profileColumns = `profile_id, float_id, cycle_number, latitude, longitude, measured_at,
	data_mode, quality_flag, empty, measurement_count, good_count, questionable_count,
	rejected_count, min_pressure, max_pressure`

const profileUpsert = `
	ON CONFLICT (profile_id) DO UPDATE SET
		float_id           = excluded.float_id,
		cycle_number       = excluded.cycle_number,
		latitude           = excluded.latitude,
		longitude          = excluded.longitude,
		measured_at        = excluded.measured_at,
		data_mode          = excluded.data_mode,
		quality_flag       = excluded.quality_flag,
		empty              = excluded.empty,
		measurement_count  = excluded.measurement_count,
		good_count         = excluded.good_count,
		questionable_count = excluded.questionable_count,
		rejected_count     = excluded.rejected_count,
		min_pressure       = excluded.min_pressure,
		max_pressure       = excluded.max_pressure
	WHERE (p.float_id, p.cycle_number, p.latitude, p.longitude, p.measured_at, p.data_mode,
	       p.quality_flag, p.empty, p.measurement_count, p.good_count, p.questionable_count,
	       p.rejected_count, p.min_pressure, p.max_pressure)
	IS DISTINCT FROM
	      (excluded.float_id, excluded.cycle_number, excluded.latitude, excluded.longitude,
	       excluded.measured_at, excluded.data_mode, excluded.quality_flag, excluded.empty,
	       excluded.measurement_count, excluded.good_count, excluded.questionable_count,
	       excluded.rejected_count, excluded.min_pressure, excluded.max_pressure)
	RETURNING (xmax = 0)`

func profileArgs(r model.ProfileRow) []interface{} {
	return []interface{}{
		r.ProfileID, r.FloatID, r.CycleNumber, r.Latitude, r.Longitude, r.MeasuredAt,
		r.DataMode, r.QualityFlag, r.Empty, r.MeasurementCount, r.GoodCount,
		r.QuestionableCount, r.RejectedCount, r.MinPressure, r.MaxPressure,
	}
}

func (d *OceanDb) storeProfilesBatch(ctx context.Context, batch []model.ProfileRow) (model.TableResult, error) {
	var result model.TableResult
	err := d.withDatabaseRetry(ctx, func() error {
		result = model.TableResult{}
		tmpTable := database.UniqueTableName("profile")

		createTmp := func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, fmt.Sprintf(`
				CREATE TEMPORARY TABLE %s
				(
					profile_id         varchar(64),
					float_id           varchar(32),
					cycle_number       int,
					latitude           double precision,
					longitude          double precision,
					measured_at        timestamptz,
					data_mode          varchar(1),
					quality_flag       varchar(1),
					empty              boolean,
					measurement_count  int,
					good_count         int,
					questionable_count int,
					rejected_count     int,
					min_pressure       double precision,
					max_pressure       double precision
				) ON COMMIT DROP;`, tmpTable))
			if err != nil {
				d.metrics.RecordDBError(metrics.DBOperationCreateTempTable)
			}
			return err
		}

		insertTmp := func(tx pgx.Tx) error {
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{tmpTable},
				[]string{
					"profile_id", "float_id", "cycle_number", "latitude", "longitude", "measured_at",
					"data_mode", "quality_flag", "empty", "measurement_count", "good_count",
					"questionable_count", "rejected_count", "min_pressure", "max_pressure",
				},
				pgx.CopyFromSlice(len(batch), func(i int) ([]interface{}, error) {
					return profileArgs(batch[i]), nil
				}),
			)
			return err
		}

		copyToDest := func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, fmt.Sprintf(
				`INSERT INTO profile AS p (%[1]s) SELECT %[1]s FROM %[2]s %[3]s`,
				profileColumns, tmpTable, profileUpsert))
			if err != nil {
				d.metrics.RecordDBError(metrics.DBOperationInsert)
				return err
			}
			result, err = countUpserts(rows, len(batch))
			return err
		}

		return batchUpsert(ctx, d.db, createTmp, insertTmp, copyToDest)
	})
	return result, err
}

func (d *OceanDb) storeProfilesScalar(ctx context.Context, batch []model.ProfileRow) (model.TableResult, error) {
	sql := fmt.Sprintf(
		`INSERT INTO profile AS p (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) %s`,
		profileColumns, profileUpsert)
	var result model.TableResult
	var errs *multierror.Error
	for _, r := range batch {
		one, err := d.upsertScalar(ctx, sql, profileArgs(r))
		if err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "upserting profile %s", r.ProfileID))
			continue
		}
		result.Add(one)
	}
	return result, errs.ErrorOrNil()
}

const measurementColumns = `profile_id, pressure, depth, pressure_qc, temperature, temperature_qc,
	salinity, salinity_qc, oxygen, oxygen_qc`

const measurementUpsert = `
	ON CONFLICT (profile_id, pressure) DO UPDATE SET
		depth          = excluded.depth,
		pressure_qc    = excluded.pressure_qc,
		temperature    = excluded.temperature,
		temperature_qc = excluded.temperature_qc,
		salinity       = excluded.salinity,
		salinity_qc    = excluded.salinity_qc,
		oxygen         = excluded.oxygen,
		oxygen_qc      = excluded.oxygen_qc
	WHERE (m.depth, m.pressure_qc, m.temperature, m.temperature_qc, m.salinity, m.salinity_qc,
	       m.oxygen, m.oxygen_qc)
	IS DISTINCT FROM
	      (excluded.depth, excluded.pressure_qc, excluded.temperature, excluded.temperature_qc,
	       excluded.salinity, excluded.salinity_qc, excluded.oxygen, excluded.oxygen_qc)
	RETURNING (xmax = 0)`

func measurementArgs(r model.MeasurementRow) []interface{} {
	return []interface{}{
		r.ProfileID, r.Pressure, r.Depth, r.PressureQC, r.Temperature, r.TemperatureQC,
		r.Salinity, r.SalinityQC, r.Oxygen, r.OxygenQC,
	}
}

func (d *OceanDb) storeMeasurementsBatch(ctx context.Context, batch []model.MeasurementRow) (model.TableResult, error) {
	var result model.TableResult
	err := d.withDatabaseRetry(ctx, func() error {
		result = model.TableResult{}
		tmpTable := database.UniqueTableName("measurement")

		createTmp := func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, fmt.Sprintf(`
				CREATE TEMPORARY TABLE %s
				(
					profile_id     varchar(64),
					pressure       double precision,
					depth          double precision,
					pressure_qc    varchar(1),
					temperature    double precision,
					temperature_qc varchar(1),
					salinity       double precision,
					salinity_qc    varchar(1),
					oxygen         double precision,
					oxygen_qc      varchar(1)
				) ON COMMIT DROP;`, tmpTable))
			if err != nil {
				d.metrics.RecordDBError(metrics.DBOperationCreateTempTable)
			}
			return err
		}

		insertTmp := func(tx pgx.Tx) error {
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{tmpTable},
				[]string{
					"profile_id", "pressure", "depth", "pressure_qc", "temperature", "temperature_qc",
					"salinity", "salinity_qc", "oxygen", "oxygen_qc",
				},
				pgx.CopyFromSlice(len(batch), func(i int) ([]interface{}, error) {
					return measurementArgs(batch[i]), nil
				}),
			)
			return err
		}

		copyToDest := func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, fmt.Sprintf(
				`INSERT INTO measurement AS m (%[1]s) SELECT %[1]s FROM %[2]s %[3]s`,
				measurementColumns, tmpTable, measurementUpsert))
			if err != nil {
				d.metrics.RecordDBError(metrics.DBOperationInsert)
				return err
			}
			result, err = countUpserts(rows, len(batch))
			return err
		}

		return batchUpsert(ctx, d.db, createTmp, insertTmp, copyToDest)
	})
	return result, err
}

func (d *OceanDb) storeMeasurementsScalar(ctx context.Context, batch []model.MeasurementRow) (model.TableResult, error) {
	sql := fmt.Sprintf(
		`INSERT INTO measurement AS m (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) %s`,
		measurementColumns, measurementUpsert)
	var result model.TableResult
	var errs *multierror.Error
	for _, r := range batch {
		one, err := d.upsertScalar(ctx, sql, measurementArgs(r))
		if err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "upserting measurement %s@%v", r.ProfileID, r.Pressure))
			continue
		}
		result.Add(one)
	}
	return result, errs.ErrorOrNil()
}

// upsertScalar runs a single-row upsert with retries.
func (d *OceanDb) upsertScalar(ctx context.Context, sql string, args []interface{}) (model.TableResult, error) {
	var result model.TableResult
	err := d.withDatabaseRetry(ctx, func() error {
		rows, err := d.db.Query(ctx, sql, args...)
		if err != nil {
			d.metrics.RecordDBError(metrics.DBOperationInsert)
			return err
		}
		result, err = countUpserts(rows, 1)
		return err
	})
	return result, err
}

// countUpserts drains an upsert's RETURNING (xmax = 0) rows. Inserted rows
// return true, updated rows false, and rows whose content was already
// identical return nothing at all.
func countUpserts(rows pgx.Rows, total int) (model.TableResult, error) {
	defer rows.Close()
	var result model.TableResult
	for rows.Next() {
		var isInsert bool
		if err := rows.Scan(&isInsert); err != nil {
			return model.TableResult{}, err
		}
		if isInsert {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	if err := rows.Err(); err != nil {
		return model.TableResult{}, err
	}
	result.Unchanged = int64(total) - result.Inserted - result.Updated
	return result, nil
}

func batchUpsert(ctx context.Context, db *pgxpool.Pool, createTmp func(pgx.Tx) error,
	insertTmp func(pgx.Tx) error, copyToDest func(pgx.Tx) error,
) error {
	return pgx.BeginTxFunc(ctx, db, pgx.TxOptions{
		IsoLevel:       pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
		DeferrableMode: pgx.Deferrable,
	}, func(tx pgx.Tx) error {
		err := createTmp(tx)
		if err != nil {
			return err
		}
		err = insertTmp(tx)
		if err != nil {
			return err
		}
		return copyToDest(tx)
	})
}

// withDatabaseRetry runs a database operation, retrying with doubling
// backoff while the error is a transient network or Postgres condition.
func (d *OceanDb) withDatabaseRetry(ctx context.Context, executeDb func() error) error {
	backOff := 1
	var err error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		err = executeDb()
		if err == nil {
			return nil
		}
		if !oceanerrors.IsNetworkError(err) && !oceanerrors.IsRetryablePostgresError(err) {
			return err
		}
		backOff = util.Min(2*backOff, d.maxBackoff)
		log.Warnf("Retryable error encountered executing sql, will wait for %d seconds before retrying. Error was %v", backOff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(backOff) * time.Second):
		}
	}
	return errors.WithStack(&oceanerrors.ErrMaxRetriesExceeded{
		Message:   fmt.Sprintf("gave up running database query after %d attempts", d.maxAttempts),
		LastError: err,
	})
}

func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(items)
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for size < len(items) {
		items, batches = items[size:], append(batches, items[:size])
	}
	return append(batches, items)
}
