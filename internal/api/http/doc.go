/*
Package http exposes the folder store over HTTP with gin.

Folders and files are addressed by name in the route. Whole folders move as
archives: GET /download/:folder packs one (zip by default, or ?format=tar,
tar.gz, tar.zst) and POST /uploadFolder/:folder extracts one into place.

Errors are JSON bodies of the form {"error": "...", "code": "..."}:

	invalid_path     400
	not_found        404
	already_exists   409
	too_large        413
	unpack_error     422
	disk_full        507
	anything else    500
*/
package http
